package main

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Handle a single message and print the result as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		message, _ := cmd.Flags().GetString("message")

		flow, err := newFlow(cmd.Context())
		if err != nil {
			return err
		}
		result, err := flow.Handle(cmd.Context(), user, message)
		if err != nil {
			return err
		}
		out, err := sonic.ConfigStd.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(routeCmd)

	routeCmd.Flags().String("user", "", "user identity")
	routeCmd.Flags().String("message", "", "message text")
	_ = routeCmd.MarkFlagRequired("user")
}
