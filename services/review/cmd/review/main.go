package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "review",
		Short:         "Screenshot review service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "config file (default $REVIEW_CONFIG or config.yaml)")
	root.AddCommand(newServeCmd(), newCaptureCmd(), newTokenCmd(), newHashTokenCmd())
	return root
}
