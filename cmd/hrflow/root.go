package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/tbxark/hrflow/agent"
	"github.com/tbxark/hrflow/config"
)

var (
	cfgFile string
	conf    *config.Config
	logger  = slog.Default()
	closer  io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "hrflow",
	Short: "Conversational router for HR workflows",
	Long: `hrflow turns free-text HR messages into onboarding, leave request and
pulse check submissions, asking for missing fields and for confirmation
before anything is sent to a webhook.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			c.Log.Level = level
		}
		l, cl, err := config.NewLogger(c.Log)
		if err != nil {
			return err
		}
		conf, logger, closer = c, l, cl
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if closer != nil {
			return closer.Close()
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./hrflow.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
}

func newFlow(ctx context.Context) (*agent.Flow, error) {
	return conf.NewFlow(ctx, logger)
}
