package main

import (
	"github.com/autom8ter/viewdb/transport/http"
	"github.com/spf13/cobra"
)

func serveCmd(open opener) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve rows and views over http",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := open(ctx)
			if err != nil {
				return err
			}
			defer db.Close(ctx)
			s, err := http.New(db, http.Config{Port: port})
			if err != nil {
				return err
			}
			return s.Serve(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "port to serve on")
	return cmd
}
