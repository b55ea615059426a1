// Command templarctl runs database migrations and registers provider apps.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "templarctl",
		Short:         "Operate a templar deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("database-url", os.Getenv("DATABASE_URL"),
		"postgres connection string (defaults to DB_* settings)")

	root.AddCommand(newMigrateCmd(), newAppCmd())
	return root
}
