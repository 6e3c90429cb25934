package main

import (
	"os"

	"github.com/spf13/cobra"

	"baechamap/internal/buildinfo"
)

var cfgPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "baechamap",
		Short:        "Live taxi dispatch (baecha) dashboard",
		SilenceUsage: true,
		RunE:         runServe,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json); BAECHA_* env vars override it")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard service",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println(buildinfo.String())
		},
	})
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
