package command

import (
	"context"
)

var (
	DefaultAffirmative = []string{"yes", "confirm", "yes please", "submit"}
	DefaultNegative    = []string{"no", "cancel", "not now"}
	DefaultSmallTalk   = []string{"hi", "hello", "hey", "yo", "how are you", "good morning", "good afternoon"}
)

// LocalCommandParser matches input against fixed vocabularies. Confirm and
// Cancel are checked before SmallTalk.
type LocalCommandParser struct {
	Affirmative Vocabulary
	Negative    Vocabulary
	SmallTalk   Vocabulary
}

func NewLocalCommandParser() *LocalCommandParser {
	return &LocalCommandParser{
		Affirmative: NewVocabulary(DefaultAffirmative...),
		Negative:    NewVocabulary(DefaultNegative...),
		SmallTalk:   NewVocabulary(DefaultSmallTalk...),
	}
}

// ParseCommand never fails; the error return satisfies Parser.
func (p *LocalCommandParser) ParseCommand(ctx context.Context, input string) (Command, error) {
	switch {
	case p.Affirmative.Contains(input):
		return Confirm, nil
	case p.Negative.Contains(input):
		return Cancel, nil
	case p.SmallTalk.Contains(input) || Normalize(input) == "":
		return SmallTalk, nil
	default:
		return None, nil
	}
}
