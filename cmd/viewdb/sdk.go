package main

import (
	"os"

	"github.com/autom8ter/viewdb/transport/http"
	"github.com/spf13/cobra"
)

func sdkCmd() *cobra.Command {
	var (
		pkg    string
		params http.Config
	)
	cmd := &cobra.Command{
		Use:   "sdk",
		Short: "print a generated go client for the http api",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return http.GenerateSDK(params, pkg, os.Stdout)
		},
	}
	cmd.Flags().StringVar(&pkg, "pkg", "", "package name of the client (defaults to the snake cased title)")
	cmd.Flags().StringVar(&params.Title, "title", "viewdb", "title of the api")
	cmd.Flags().StringVar(&params.Version, "version", "", "version of the api")
	return cmd
}
