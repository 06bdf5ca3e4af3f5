package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zoobzio/relayz/internal/builtin"
)

func newStagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the builtin stages",
		Long:  "Display every builtin stage identifier with its description and the methods it answers to.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available stages:")
			fmt.Fprintln(out)
			for _, d := range builtin.Descriptions() {
				fmt.Fprintf(out, "  %-22s %s (%s)\n", d.Usage, d.Summary, strings.Join(d.Methods, ", "))
			}
		},
	}
}
