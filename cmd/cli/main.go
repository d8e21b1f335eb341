package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "personaops",
		Short:         "PersonaOps backend CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `PersonaOps backend CLI

Environment Variables:
  PERSONAOPS_API        API endpoint (default: http://localhost:8080)
  DATABASE_URL          Postgres connection string for migrate/backfill
  SUPABASE_JWT_SECRET   Secret used by "token" to sign development tokens`,
	}
	root.PersistentFlags().StringVar(&opts.apiURL, "api", apiURLFromEnv(), "API endpoint")

	root.AddCommand(
		newMigrateCmd(),
		newBackfillCmd(),
		newTokenCmd(),
		newLogoutCmd(),
		newCallCmd(opts),
		newOutputsCmd(opts),
		newVersionCmd(),
	)
	return root
}
