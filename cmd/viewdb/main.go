package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/autom8ter/viewdb"
	_ "github.com/autom8ter/viewdb/kv/badger"
	_ "github.com/autom8ter/viewdb/kv/tikv"
	"github.com/spf13/cobra"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	var configPath string
	cmd := &cobra.Command{
		Use:          "viewdb",
		Short:        "viewdb is an embedded document store with incrementally maintained, sorted and grouped views",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "viewdb.yaml", "path to the yaml config")
	open := func(ctx context.Context) (*viewdb.Database, error) {
		cfg, err := viewdb.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		return viewdb.Open(ctx, cfg)
	}
	cmd.AddCommand(serveCmd(open))
	cmd.AddCommand(groupsCmd(open))
	cmd.AddCommand(rowsCmd(open))
	cmd.AddCommand(sdkCmd())
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

type opener func(ctx context.Context) (*viewdb.Database, error)
