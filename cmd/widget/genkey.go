package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/util"
)

func newGenKeyCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "gen-key",
		Short: "Generate API keys for MOCK_API_KEYS and WIDGET_API_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for i := 0; i < count; i++ {
				key, err := util.GenerateToken()
				if err != nil {
					return fmt.Errorf("generate key: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of keys to print")

	return cmd
}
