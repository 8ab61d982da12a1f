package main

import (
	"github.com/spf13/cobra"

	"github.com/thalesfsp/ho/v2/internal/config"
)

var cfgFile string

// NewRootCmd builds the ho command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "ho",
		Short:        "Bayesian optimization of expensive black-box functions",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigFile, "config file path")

	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newVersionCmd())

	return root
}
