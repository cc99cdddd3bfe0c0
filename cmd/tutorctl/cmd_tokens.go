package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newGrantTokensCmd(root *rootOptions) *cobra.Command {
	var userID, count int64

	cmd := &cobra.Command{
		Use:   "grant-tokens",
		Short: "Add free model tokens to an identity",
		Long: `Each free token pays for one metered model call by a student without a
class credential.

Example:
  tutorctl grant-tokens --user 3 --count 20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count <= 0 {
				return errors.New("--count must be positive")
			}

			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if err := store.GrantTokens(ctx, userID, count); err != nil {
				return fmt.Errorf("grant tokens: %w", err)
			}
			balance, err := store.TokenBalance(ctx, userID)
			if err != nil {
				return fmt.Errorf("read balance: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "identity %d now has %d tokens\n", userID, balance)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "identity id")
	cmd.Flags().Int64Var(&count, "count", 0, "tokens to add")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("count")
	return cmd
}
