package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tbxark/hrflow/workflow"
)

var ErrNoMatch = errors.New("no workflow keyword matched")

// DefaultKeywords drive KeywordClassifier when no model is configured.
var DefaultKeywords = map[workflow.Kind][]string{
	workflow.Onboarding:   {"onboard", "new hire", "new developer", "joining", "joins", "start date", "first day", "welcome"},
	workflow.LeaveRequest: {"leave", "day off", "days off", "time off", "vacation", "holiday", "sick", "pto", " off"},
	workflow.PulseCheck:   {"pulse", "feedback", "survey", "mood", "morale", "how the team"},
}

// KeywordClassifier scores each workflow by keyword hits. Ties go to the
// earlier kind in workflow.Kinds.
type KeywordClassifier struct {
	Keywords map[workflow.Kind][]string
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{Keywords: DefaultKeywords}
}

func (c *KeywordClassifier) Classify(ctx context.Context, message string) (workflow.Kind, error) {
	text := " " + strings.ToLower(message) + " "
	var best workflow.Kind
	bestScore := 0
	for _, kind := range workflow.Kinds {
		score := 0
		for _, kw := range c.Keywords[kind] {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = kind, score
		}
	}
	if bestScore == 0 {
		return "", ErrNoMatch
	}
	return best, nil
}

type FailbackClassifier struct {
	classifiers []Classifier
}

func NewFailbackClassifier(classifiers ...Classifier) *FailbackClassifier {
	return &FailbackClassifier{classifiers: classifiers}
}

func (c *FailbackClassifier) Classify(ctx context.Context, message string) (workflow.Kind, error) {
	lastErr := errors.New("no classifier configured")
	for _, classifier := range c.classifiers {
		kind, err := classifier.Classify(ctx, message)
		if err == nil {
			return kind, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("all classifiers failed: %w", lastErr)
}
