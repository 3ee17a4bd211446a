package prompt

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/chative-order-relay/agent/contract"
)

func TestLoadPromptSetIsPopulated(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	for name, body := range map[string]string{
		"persona":             set.Persona,
		"client_proxy":        set.ClientProxy,
		"search_query":        set.SearchQuery,
		"restaurant_metadata": set.RestaurantMetadata,
	} {
		if body == "" {
			t.Errorf("%s prompt is empty", name)
		}
	}
}

func TestRenderKeepsJSONBraces(t *testing.T) {
	t.Parallel()

	out, err := Render(context.Background(), LoadPromptSet().RestaurantMetadata, map[string]any{
		"food":  "pizza",
		"names": []string{"Pizzaria Bella", "Forno Nobre"},
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	for _, want := range []string{`"pizza"`, "0. Pizzaria Bella", "1. Forno Nobre", `[{"index": 0`} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered prompt missing %q:\n%s", want, out)
		}
	}
}

func TestRenderEmptyTemplate(t *testing.T) {
	t.Parallel()

	if _, err := Render(context.Background(), " ", nil); !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("Render() error = %v, want ErrPromptMissing", err)
	}
}
