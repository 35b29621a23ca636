package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"
	"github.com/tbxark/hrflow/agent"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant on stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		user, _ := cmd.Flags().GetString("user")

		flow, err := newFlow(ctx)
		if err != nil {
			return err
		}
		historyStore := agent.NewMemoryHistoryStore(agent.KeepSystemLastNTrimmer{N: 50})
		hrAgent := agent.NewAgent(
			"HRAssistant",
			"An agent that collects and submits HR workflows via conversation",
			flow,
		)
		runner := adk.NewRunner(ctx, adk.RunnerConfig{
			Agent: hrAgent,
		})

		out := cmd.OutOrStdout()
		reader := bufio.NewReader(cmd.InOrStdin())
		fmt.Fprintln(out, "Hi! I can help with onboarding, leave requests, or pulse checks.")
		for {
			fmt.Fprint(out, "you: ")
			input, rErr := reader.ReadString('\n')
			if rErr != nil {
				fmt.Fprintln(out, "\nbye.")
				return nil
			}
			chatCtx := agent.WithUser(ctx, user)
			input = strings.TrimSpace(input)
			history, rErr := historyStore.Append(ctx, user, schema.UserMessage(input))
			if rErr != nil {
				return rErr
			}
			iter := runner.Run(chatCtx, history)
			for {
				event, ok := iter.Next()
				if !ok {
					break
				}
				if event.Err != nil {
					return event.Err
				}
				msg, mErr := event.Output.MessageOutput.GetMessage()
				if mErr != nil {
					return mErr
				}
				if _, apErr := historyStore.Append(ctx, user, msg); apErr != nil {
					return apErr
				}
				clearFinishedHistory(ctx, historyStore, user, event, logger)
				fmt.Fprintf(out, "\nassistant: %s\n======\n", msg.Content)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("user", "local@hrflow", "user identity for the chat session")
}

// clearFinishedHistory drops the transcript once a turn ends the session. A
// failed clear only costs stale context on the next turn, so it is logged.
func clearFinishedHistory(ctx context.Context, history agent.HistoryReadWriter, user string, event *adk.AgentEvent, logger *slog.Logger) {
	result, ok := agent.ResultFromEvent(event)
	if !ok || !result.Terminal() {
		return
	}
	if err := history.Clear(ctx, user); err != nil {
		logger.Warn("Failed to clear chat history", "user", user, "error", err)
	}
}
