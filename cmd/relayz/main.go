package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "relayz",
		Short: "Run string payloads through middleware pipelines",
		Long: `relayz threads a payload through an ordered list of stages, each of which
decides whether and how to call the rest of the chain.

Stages are named by identifier, "name[:param1,param2]", and resolved from the
builtin registry when the chain reaches them. Settings come from relayz.yaml,
RELAYZ_ environment variables and flags, in increasing priority.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Disable default completion command
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newRunCmd())
	root.AddCommand(newStagesCmd())
	return root
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
