package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
	openrouterx "github.com/tanpawarit/chative-order-relay/pkg/openrouter"
)

type Role string

const (
	RoleChat      Role = "chat"
	RoleProxy     Role = "proxy"
	RoleDiscovery Role = "discovery"
)

const (
	DriverEino = "eino"
	DriverSDK  = "sdk"
)

type Config struct {
	Driver             string        `envconfig:"DRIVER" split_words:"true" default:"eino"`
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"600"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.7"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	ChatModel            string  `envconfig:"CHAT_MODEL" split_words:"true"`
	ProxyModel           string  `envconfig:"PROXY_MODEL" split_words:"true"`
	DiscoveryModel       string  `envconfig:"DISCOVERY_MODEL" split_words:"true"`
	ChatTemperature      float32 `envconfig:"CHAT_TEMPERATURE" split_words:"true" default:"-1"`
	ProxyTemperature     float32 `envconfig:"PROXY_TEMPERATURE" split_words:"true" default:"-1"`
	DiscoveryTemperature float32 `envconfig:"DISCOVERY_TEMPERATURE" split_words:"true" default:"0.2"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	switch c.Driver {
	case DriverEino, DriverSDK:
	default:
		return fmt.Errorf("%w: unknown llm driver %q", contractx.ErrValidation, c.Driver)
	}
	return nil
}

type roleOverride struct {
	model       string
	temperature float32
}

func (c Config) overrides() map[Role]roleOverride {
	return map[Role]roleOverride{
		RoleChat:      {c.ChatModel, c.ChatTemperature},
		RoleProxy:     {c.ProxyModel, c.ProxyTemperature},
		RoleDiscovery: {c.DiscoveryModel, c.DiscoveryTemperature},
	}
}

// OpenRouterFor resolves the model settings for role. An empty role model or
// a negative role temperature falls back to the shared default.
func (c Config) OpenRouterFor(role Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature
	if o, ok := c.overrides()[role]; ok {
		if v := strings.TrimSpace(o.model); v != "" {
			modelName = v
		}
		if o.temperature >= 0 {
			temp = o.temperature
		}
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
