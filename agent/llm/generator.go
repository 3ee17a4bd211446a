package llm

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	openrouterx "github.com/tanpawarit/chative-order-relay/pkg/openrouter"
)

// ModelGenerator runs a prompt through an eino chat model graph.
type ModelGenerator struct {
	runner compose.Runnable[string, string]
}

var _ contractx.TextGenerator = (*ModelGenerator)(nil)

func NewModelGenerator(ctx context.Context, chatModel einomodel.BaseChatModel, graphName string) (*ModelGenerator, error) {
	runner, err := compileTextGraph(ctx, chatModel, graphName)
	if err != nil {
		return nil, fmt.Errorf("%w: compile text graph: %v", contractx.ErrModelInvoke, err)
	}
	return &ModelGenerator{runner: runner}, nil
}

func (g *ModelGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is empty", contractx.ErrPromptMissing)
	}
	out, err := g.runner.Invoke(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return out, nil
}

func compileTextGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	graphName string,
) (compose.Runnable[string, string], error) {
	graph := compose.NewGraph[string, string]()

	if err := graph.AddLambdaNode("to_messages",
		compose.InvokableLambda(func(ctx context.Context, prompt string) ([]*schema.Message, error) {
			return []*schema.Message{schema.UserMessage(prompt)}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add text prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add text model node: %w", err)
	}
	if err := graph.AddLambdaNode("extract_text",
		compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (string, error) {
			if msg == nil {
				return "", fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
			}
			text := strings.TrimSpace(msg.Content)
			if text == "" {
				return "", fmt.Errorf("%w: model returned no text", contractx.ErrSchemaViolation)
			}
			return text, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add text extract node: %w", err)
	}

	edges := [][2]string{
		{compose.START, "to_messages"},
		{"to_messages", "model"},
		{"model", "extract_text"},
		{"extract_text", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile text graph: %w", err)
	}
	return runner, nil
}

// Generators holds one text generator per role.
type Generators struct {
	Chat      contractx.TextGenerator
	Proxy     contractx.TextGenerator
	Discovery contractx.TextGenerator
}

func NewGenerators(ctx context.Context, cfg Config) (Generators, error) {
	if err := cfg.Validate(); err != nil {
		return Generators{}, err
	}

	build := func(role Role) (contractx.TextGenerator, error) {
		orCfg := cfg.OpenRouterFor(role)
		if cfg.Driver == DriverSDK {
			gen, err := openrouterx.NewSDKGenerator(orCfg)
			if err != nil {
				return nil, fmt.Errorf("%w: create %s generator: %v", contractx.ErrModelInvoke, role, err)
			}
			return gen, nil
		}
		chatModel, err := orCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, role, err)
		}
		return NewModelGenerator(ctx, chatModel, "llm."+string(role))
	}

	var (
		gens Generators
		err  error
	)
	if gens.Chat, err = build(RoleChat); err != nil {
		return Generators{}, err
	}
	if gens.Proxy, err = build(RoleProxy); err != nil {
		return Generators{}, err
	}
	if gens.Discovery, err = build(RoleDiscovery); err != nil {
		return Generators{}, err
	}
	return gens, nil
}
