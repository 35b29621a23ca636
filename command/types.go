package command

import (
	"context"
	"sort"
	"strings"
)

type Command string

const (
	Confirm   Command = "confirm"
	Cancel    Command = "cancel"
	SmallTalk Command = "small_talk"
	None      Command = "none"
)

type Parser interface {
	ParseCommand(ctx context.Context, input string) (Command, error)
}

// Vocabulary is a closed set of phrases matched after Normalize.
type Vocabulary map[string]struct{}

func NewVocabulary(phrases ...string) Vocabulary {
	v := make(Vocabulary, len(phrases))
	for _, p := range phrases {
		if n := Normalize(p); n != "" {
			v[n] = struct{}{}
		}
	}
	return v
}

func (v Vocabulary) Contains(input string) bool {
	_, ok := v[Normalize(input)]
	return ok
}

// Phrases returns the vocabulary sorted, for listings and tests.
func (v Vocabulary) Phrases() []string {
	out := make([]string, 0, len(v))
	for p := range v {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Normalize trims surrounding whitespace and lower-cases input.
func Normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
