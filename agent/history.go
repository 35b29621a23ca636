package agent

import (
	"context"
	"slices"

	"github.com/cloudwego/eino/schema"
)

type Trimmer interface {
	Trim(history []*schema.Message) []*schema.Message
}

// KeepSystemLastNTrimmer keeps all system messages and the last N others.
type KeepSystemLastNTrimmer struct {
	N int
}

func (t KeepSystemLastNTrimmer) Trim(history []*schema.Message) []*schema.Message {
	budget := max(t.N, 0)
	out := make([]*schema.Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		switch {
		case m == nil:
		case m.Role == schema.System:
			out = append(out, m)
		case budget > 0:
			out = append(out, m)
			budget--
		}
	}
	slices.Reverse(out)
	return out
}

// HistoryReadWriter keeps the chat transcript of each user.
type HistoryReadWriter interface {
	Load(ctx context.Context, user string) ([]*schema.Message, error)
	Save(ctx context.Context, user string, history []*schema.Message) error
	Clear(ctx context.Context, user string) error

	// Append loads history, appends msgs with de-duplication, trims, then saves.
	// It returns the saved history for convenient passing to adk.AgentInput.
	Append(ctx context.Context, user string, msgs ...*schema.Message) ([]*schema.Message, error)
}

const historyNamespace = "hrflow:history"

type HistoryStore struct {
	store   Store[[]*schema.Message]
	trimmer Trimmer
}

func NewHistoryStore(core Cache[[]*schema.Message], trimmer Trimmer) *HistoryStore {
	return &HistoryStore{
		store:   NewStore(core, historyNamespace),
		trimmer: trimmer,
	}
}

func NewMemoryHistoryStore(trimmer Trimmer) *HistoryStore {
	return NewHistoryStore(NewMemoryCache[[]*schema.Message](), trimmer)
}

func (s *HistoryStore) Load(ctx context.Context, user string) ([]*schema.Message, error) {
	hist, ok, err := s.store.Get(ctx, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return hist, nil
}

func (s *HistoryStore) Save(ctx context.Context, user string, history []*schema.Message) error {
	history = normalizeHistory(history)
	history = s.trim(history)
	return s.store.Set(ctx, user, history)
}

func (s *HistoryStore) Clear(ctx context.Context, user string) error {
	return s.store.Del(ctx, user)
}

func (s *HistoryStore) Append(ctx context.Context, user string, msgs ...*schema.Message) ([]*schema.Message, error) {
	hist, err := s.Load(ctx, user)
	if err != nil {
		return nil, err
	}
	hist = appendHistory(hist, msgs...)
	if err := s.Save(ctx, user, hist); err != nil {
		return nil, err
	}
	return s.Load(ctx, user)
}

func (s *HistoryStore) trim(history []*schema.Message) []*schema.Message {
	if s == nil || s.trimmer == nil {
		return history
	}
	return s.trimmer.Trim(history)
}

// appendHistory drops a message that repeats the previous one, which happens
// when the runner replays the assistant reply.
func appendHistory(history []*schema.Message, msgs ...*schema.Message) []*schema.Message {
	if len(msgs) == 0 {
		return history
	}
	out := history
	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		if len(out) > 0 {
			last := out[len(out)-1]
			if last != nil && last.Role == msg.Role && last.Content == msg.Content {
				continue
			}
		}
		out = append(out, msg)
	}
	return out
}

func normalizeHistory(history []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

var _ HistoryReadWriter = (*HistoryStore)(nil)
