package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/tbxark/hrflow/agent"
	"github.com/tbxark/hrflow/types"
)

type unclearableHistory struct {
	*agent.HistoryStore
}

func (unclearableHistory) Clear(context.Context, string) error {
	return errors.New("history offline")
}

func resultEvent(status types.Status) *adk.AgentEvent {
	return &adk.AgentEvent{Output: &adk.AgentOutput{CustomizedOutput: &types.Result{Status: status}}}
}

func TestClearFinishedHistoryLogsFailure(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	history := unclearableHistory{agent.NewMemoryHistoryStore(nil)}

	clearFinishedHistory(context.Background(), history, "u1", resultEvent(types.StatusSuccess), logger)
	if !strings.Contains(buf.String(), "Failed to clear chat history") || !strings.Contains(buf.String(), "history offline") {
		t.Fatalf("expected clear failure to be logged, got %q", buf.String())
	}
}

func TestClearFinishedHistoryOnlyOnTerminalTurns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	history := agent.NewMemoryHistoryStore(nil)
	if _, err := history.Append(ctx, "u1", schema.UserMessage("I need a day off")); err != nil {
		t.Fatalf("append: %v", err)
	}

	clearFinishedHistory(ctx, history, "u1", resultEvent(types.StatusConfirm), logger)
	if msgs, _ := history.Load(ctx, "u1"); len(msgs) != 1 {
		t.Fatalf("non-terminal turn must keep history, got %d messages", len(msgs))
	}

	clearFinishedHistory(ctx, history, "u1", resultEvent(types.StatusCancelled), logger)
	if msgs, _ := history.Load(ctx, "u1"); len(msgs) != 0 {
		t.Fatalf("terminal turn must clear history, got %d messages", len(msgs))
	}
}
