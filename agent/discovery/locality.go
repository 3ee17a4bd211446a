package discovery

import (
	"fmt"
	"strings"
	"unicode"
)

// Locality picks the last comma-separated address segment that names a
// place, skipping the street segment, else returns fallback.
func Locality(address, fallback string) string {
	segments := strings.Split(address, ",")
	for i := len(segments) - 1; i >= 1; i-- {
		seg := strings.TrimSpace(segments[i])
		if idx := strings.Index(seg, " - "); idx > 0 {
			seg = strings.TrimSpace(seg[:idx])
		}
		if hasLetter(seg) {
			return seg
		}
	}
	return strings.TrimSpace(fallback)
}

var categoryLookup = []struct {
	needles  []string
	category string
}{
	{[]string{"pizza"}, "pizzaria"},
	{[]string{"hambúrguer", "hamburguer", "burger"}, "hamburgueria"},
	{[]string{"sushi", "temaki", "japon"}, "restaurante japonês"},
	{[]string{"açaí", "acai"}, "açaiteria"},
	{[]string{"pastel"}, "pastelaria"},
	{[]string{"esfiha", "esfirra"}, "esfiharia"},
	{[]string{"churrasco"}, "churrascaria"},
	{[]string{"marmita", "prato feito", "feijoada"}, "restaurante marmitex"},
	{[]string{"yakisoba", "chines", "chinês"}, "restaurante chinês"},
	{[]string{"lanche", "sanduíche", "sanduiche", "hot dog", "cachorro quente"}, "lanchonete"},
}

// Category maps food text to the kind of place that sells it.
func Category(food string) string {
	lower := strings.ToLower(food)
	for _, entry := range categoryLookup {
		for _, needle := range entry.needles {
			if strings.Contains(lower, needle) {
				return entry.category
			}
		}
	}
	return strings.TrimSpace(food)
}

// TemplateQuery is the deterministic search query used when generation fails.
func TemplateQuery(food, channel, locality string) string {
	return strings.Join(strings.Fields(fmt.Sprintf("%s delivery %s %s", Category(food), channel, locality)), " ")
}

var accentFolder = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a",
	"é", "e", "ê", "e",
	"í", "i",
	"ó", "o", "ô", "o", "õ", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
)

func fold(s string) string {
	return accentFolder.Replace(strings.ToLower(s))
}

func mentions(haystack, locality string) bool {
	if locality == "" {
		return true
	}
	return strings.Contains(fold(haystack), fold(locality))
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
