package extract

import (
	"context"
	"regexp"
	"slices"
	"strings"
)

var pairPattern = regexp.MustCompile(`(?i)([a-z_]+(?:\s+[a-z_]+){0,3})\s*[:=]\s*([^,;\n]+)`)

// KeyValueExtractor reads "field: value" or "field = value" pairs, separated by
// commas, semicolons or newlines. Field names match case-insensitively with
// spaces standing in for underscores, and leading filler words are ignored
// ("my employee id: E1"). It needs no model.
type KeyValueExtractor struct{}

func NewKeyValueExtractor() *KeyValueExtractor {
	return &KeyValueExtractor{}
}

func (KeyValueExtractor) Extract(ctx context.Context, req *Request) (map[string]any, error) {
	out := map[string]any{}
	for _, m := range pairPattern.FindAllStringSubmatch(req.Message, -1) {
		if name, ok := matchField(m[1], req.Fields); ok {
			out[name] = strings.TrimSpace(m[2])
		}
	}
	return out, nil
}

func matchField(phrase string, fields []string) (string, bool) {
	words := strings.Fields(strings.ToLower(phrase))
	for i := range words {
		name := strings.Join(words[i:], "_")
		if slices.Contains(fields, name) {
			return name, true
		}
	}
	return "", false
}
