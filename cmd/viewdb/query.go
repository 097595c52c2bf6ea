package main

import (
	"context"
	"fmt"

	"github.com/autom8ter/viewdb"
	"github.com/autom8ter/viewdb/util"
	"github.com/spf13/cobra"
)

func groupsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "groups [view]",
		Short: "print the groups of a view and their sizes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return readView(cmd.Context(), open, args[0], func(ctx context.Context, tx viewdb.ReadTx, view *viewdb.ViewReader) error {
				counts := map[string]int{}
				for _, group := range view.Groups() {
					counts[group] = view.Count(group)
				}
				fmt.Println(util.JSONString(map[string]any{
					"snapshot": tx.Snapshot(),
					"view":     view.Name(),
					"groups":   counts,
				}))
				return nil
			})
		},
	}
}

func rowsCmd(open opener) *cobra.Command {
	var (
		order  string
		offset int
		limit  int
		expand bool
	)
	cmd := &cobra.Command{
		Use:   "rows [view] [group]",
		Short: "print the rows of a group in view order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := viewdb.ParseOrder(order)
			if err != nil {
				return err
			}
			return readView(cmd.Context(), open, args[0], func(ctx context.Context, tx viewdb.ReadTx, view *viewdb.ViewReader) error {
				for _, id := range view.Range(args[1], offset, limit, o) {
					if !expand {
						fmt.Println(id.String())
						continue
					}
					row, err := tx.Get(ctx, id.Collection, id.Key)
					if err != nil {
						return err
					}
					fmt.Println(util.JSONString(row))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&order, "order", "asc", "order to read the group in (asc|desc)")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of rows to skip")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of rows to print (0 prints every row)")
	cmd.Flags().BoolVar(&expand, "expand", false, "print each row's object and metadata instead of its id")
	return cmd
}

func readView(ctx context.Context, open opener, name string, fn func(ctx context.Context, tx viewdb.ReadTx, view *viewdb.ViewReader) error) error {
	db, err := open(ctx)
	if err != nil {
		return err
	}
	defer db.Close(ctx)
	conn, err := db.Connect()
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return conn.Read(ctx, func(ctx context.Context, tx viewdb.ReadTx) error {
		view, err := tx.View(name)
		if err != nil {
			return err
		}
		return fn(ctx, tx, view)
	})
}
