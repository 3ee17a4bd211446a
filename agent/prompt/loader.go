package prompt

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
)

var (
	//go:embed template/persona.txt
	personaRaw string

	//go:embed template/client_proxy.txt
	clientProxyRaw string

	//go:embed template/search_query.txt
	searchQueryRaw string

	//go:embed template/restaurant_metadata.txt
	restaurantMetadataRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Persona            string
	ClientProxy        string
	SearchQuery        string
	RestaurantMetadata string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Persona:            strings.TrimSpace(personaRaw),
		ClientProxy:        strings.TrimSpace(clientProxyRaw),
		SearchQuery:        strings.TrimSpace(searchQueryRaw),
		RestaurantMetadata: strings.TrimSpace(restaurantMetadataRaw),
	}
}

// Render fills a Go-template prompt through eino's chat template and returns
// the resulting text.
func Render(ctx context.Context, tmpl string, vars map[string]any) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		return "", contractx.ErrPromptMissing
	}
	msgs, err := einoprompt.FromMessages(schema.GoTemplate, schema.UserMessage(tmpl)).Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%w: render prompt: %v", contractx.ErrPromptMissing, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", contractx.ErrPromptMissing
	}
	return strings.TrimSpace(msgs[0].Content), nil
}
