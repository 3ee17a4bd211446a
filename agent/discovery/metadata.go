package discovery

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	statex "github.com/tanpawarit/chative-order-relay/agent/state"
	"github.com/tidwall/gjson"
)

const (
	minRating = 3.8
	maxRating = 4.9
)

var priceRanges = []string{"$", "$$", "$$$"}

// enrich fills display metadata in place, from the generator when its output
// validates, otherwise from bounded random values.
func (s *Service) enrich(ctx context.Context, food string, candidates []statex.Candidate) {
	generated := s.generateMetadata(ctx, food, candidates)
	for i := range candidates {
		if meta, ok := generated[i]; ok {
			candidates[i].Rating = meta.Rating
			candidates[i].EstimatedTime = meta.EstimatedTime
			candidates[i].PriceRange = meta.PriceRange
			candidates[i].Specialty = meta.Specialty
			candidates[i].Provenance = statex.ProvenanceGenerated
			continue
		}
		randomMetadata(&candidates[i], food)
	}
}

type metadata struct {
	Rating        float64
	EstimatedTime string
	PriceRange    string
	Specialty     string
}

func (s *Service) generateMetadata(ctx context.Context, food string, candidates []statex.Candidate) map[int]metadata {
	if s.gen == nil || len(candidates) == 0 {
		return nil
	}
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	raw, err := s.generate(ctx, s.prompts.RestaurantMetadata, map[string]any{
		"food":  food,
		"names": names,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("metadata generation failed, using random values")
		return nil
	}
	meta, err := ParseMetadata(raw, len(candidates))
	if err != nil {
		s.log.Warn().Err(err).Msg("metadata output rejected, using random values")
		return nil
	}
	return meta
}

// ParseMetadata locates the JSON array in raw model output and keeps only the
// entries whose fields are inside the allowed ranges.
func ParseMetadata(raw string, count int) (map[int]metadata, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no json array in output")
	}
	body := raw[start : end+1]
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("invalid json array")
	}

	out := make(map[int]metadata, count)
	position := 0
	gjson.Parse(body).ForEach(func(_, item gjson.Result) bool {
		idx := position
		position++
		if v := item.Get("index"); v.Exists() && v.Type == gjson.Number {
			idx = int(v.Int())
		}
		if idx < 0 || idx >= count {
			return true
		}
		meta, ok := validMetadata(item)
		if ok {
			out[idx] = meta
		}
		return true
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable metadata entries")
	}
	return out, nil
}

func validMetadata(item gjson.Result) (metadata, bool) {
	rating := item.Get("rating")
	if rating.Type != gjson.Number || rating.Float() < minRating || rating.Float() > maxRating {
		return metadata{}, false
	}
	eta := strings.TrimSpace(item.Get("estimated_time").String())
	if eta == "" || len(eta) > 20 || !strings.ContainsAny(eta, "0123456789") {
		return metadata{}, false
	}
	price := strings.TrimSpace(item.Get("price_range").String())
	if !validPrice(price) {
		return metadata{}, false
	}
	specialty := strings.TrimSpace(item.Get("specialty").String())
	if specialty == "" || len([]rune(specialty)) > 60 {
		return metadata{}, false
	}
	return metadata{
		Rating:        float64(int(rating.Float()*10+0.5)) / 10,
		EstimatedTime: eta,
		PriceRange:    price,
		Specialty:     specialty,
	}, true
}

func validPrice(p string) bool {
	for _, v := range priceRanges {
		if p == v {
			return true
		}
	}
	return false
}

func randomMetadata(c *statex.Candidate, food string) {
	c.Rating = float64(40+rand.IntN(10)) / 10
	low := 25 + 5*rand.IntN(5)
	c.EstimatedTime = fmt.Sprintf("%d-%d min", low, low+15)
	c.PriceRange = priceRanges[rand.IntN(len(priceRanges))]
	c.Specialty = specialtyFor(food)
	c.Provenance = statex.ProvenanceScraped
}

func specialtyFor(food string) string {
	category := Category(food)
	if category == strings.TrimSpace(food) {
		return "Cozinha variada"
	}
	return strings.ToUpper(category[:1]) + category[1:]
}
