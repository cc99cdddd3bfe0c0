package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/classroom-llm-gateway/internal/auth"
	"github.com/tjfontaine/classroom-llm-gateway/internal/core/domain"
)

// newHashPasswordCmd prints a bcrypt hash for seeding local accounts by hand
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for a local account password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func newIssueTokenCmd(root *rootOptions) *cobra.Command {
	var userID, tenantID int64

	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue a signed session token",
		Long: `Issue a session token signed with session.secret. The token carries only
the identity and tenant; roles are resolved from the store on every request.

Example:
  tutorctl issue-token --user 3 --tenant 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Session.Secret == "" {
				return errors.New("session.secret is not configured")
			}

			codec := auth.NewTokenCodec(cfg.Session.Secret, cfg.Session.TTL)
			signed, err := codec.Issue(auth.SessionToken{IdentityID: userID, TenantID: tenantID})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "identity id")
	cmd.Flags().Int64Var(&tenantID, "tenant", 0, "tenant id (optional)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newAddUserCmd(root *rootOptions) *cobra.Command {
	var (
		name, username, password string
		isAdmin, isTester        bool
		tokens                   int64
	)

	cmd := &cobra.Command{
		Use:   "add-user",
		Short: "Create a local account",
		Long: `Create an identity that logs in with a username and password. Local
accounts always use the platform credential and are never metered.

Example:
  tutorctl add-user --name "Ada Lovelace" --username ada --password secret --admin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			id, err := store.CreateIdentity(ctx, &domain.Identity{
				DisplayName:  name,
				AuthProvider: domain.AuthProviderLocal,
				IsAdmin:      isAdmin,
				IsTester:     isTester,
			}, tokens)
			if err != nil {
				return fmt.Errorf("create identity: %w", err)
			}
			if err := store.SetLocalPassword(ctx, id, username, hash); err != nil {
				return fmt.Errorf("set password: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created identity %d (%s)\n", id, username)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&username, "username", "", "login name")
	cmd.Flags().StringVar(&password, "password", "", "login password")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant platform admin")
	cmd.Flags().BoolVar(&isTester, "tester", true, "allow the tutor tool")
	cmd.Flags().Int64Var(&tokens, "tokens", 0, "initial free tokens")
	for _, f := range []string{"name", "username", "password"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}
