package discovery

import (
	"regexp"
	"strings"
)

const countryCode = "55"

// recognizers run in order; the first one yielding a valid number wins
var contactRecognizers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:whats\s*app|zap|contato|telefone|tel\.?|fone|celular|pedidos)\s*[:\-]?\s*(\+?[\d\s().-]{10,22})`),
	regexp.MustCompile(`(?i)wa\.me/\+?(\d{10,13})`),
	regexp.MustCompile(`(?i)api\.whatsapp\.com/send/?\?phone=\+?(\d{10,13})`),
	regexp.MustCompile(`\+?\b55\d{10,11}\b`),
	regexp.MustCompile(`\(?\b\d{2}\)?[\s.-]*9?\d{4}[\s.-]?\d{4}\b`),
}

// FindContact scans text for a messaging contact and returns it normalized,
// or "" when nothing plausible is found.
func FindContact(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	for _, re := range contactRecognizers {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			raw := m[0]
			if len(m) > 1 {
				raw = m[1]
			}
			if len(digits(raw)) < 10 {
				continue
			}
			if contact, ok := NormalizeContact(raw); ok {
				return contact
			}
		}
	}
	return ""
}

// NormalizeContact strips formatting and prefixes the country code.
// 10 and 11 digit numbers get 55 prepended; 12 or 13 digits are kept when
// they already start with 55. Anything else is rejected.
func NormalizeContact(raw string) (string, bool) {
	d := digits(raw)
	switch {
	case len(d) == 10 || len(d) == 11:
		return countryCode + d, true
	case (len(d) == 12 || len(d) == 13) && strings.HasPrefix(d, countryCode):
		return d, true
	default:
		return "", false
	}
}

func digits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
