// Command tutorctl provisions accounts and session tokens for the tutoring
// gateway's SQLite store.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tjfontaine/classroom-llm-gateway/internal/config"
	"github.com/tjfontaine/classroom-llm-gateway/internal/storage/sqlite"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "tutorctl",
		Short: "Administer the classroom tutoring gateway",
		Long: `tutorctl seeds local accounts, issues session tokens for testing and
grants free model tokens.

Commands that touch the store read storage.sqlite.path from the config file
(or TUTOR_STORAGE__SQLITE__PATH).`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath, "path to config.yaml")

	root.AddCommand(
		newHashPasswordCmd(),
		newIssueTokenCmd(opts),
		newGrantTokensCmd(opts),
		newAddUserCmd(opts),
	)
	return root
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func (o *rootOptions) openStore() (*sqlite.Store, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Type != "sqlite" {
		return nil, fmt.Errorf("tutorctl needs sqlite storage, config has %q", cfg.Storage.Type)
	}
	return sqlite.New(cfg.Storage.SQLite.Path)
}
