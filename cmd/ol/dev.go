package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orderline/internal/app"
	"orderline/internal/engine/auth"
)

func devCmd() *cobra.Command {
	dev := &cobra.Command{
		Use:   "dev",
		Short: "Local development helpers",
	}
	dev.AddCommand(devSeedCmd())
	return dev
}

func devSeedCmd() *cobra.Command {
	opts := app.SeedOptions{}
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Fill the workspace with fake actors, orders and quotes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				if !s.IsAdmin() {
					return fmt.Errorf("%s is not an admin; run ol init first", s.ID)
				}
				rep, err := app.Seed(ctx, a.Engine, s, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				fmt.Printf("seeded %d actors, %d orders, %d quotes\n", len(rep.Actors), len(rep.Orders), len(rep.Quotes))
				return nil
			})
		},
	}
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed (0 picks one)")
	cmd.Flags().IntVar(&opts.Customers, "customers", 5, "customers to create")
	cmd.Flags().IntVar(&opts.Shippers, "shippers", 2, "shippers to create")
	cmd.Flags().IntVar(&opts.Designers, "designers", 2, "designers to create")
	cmd.Flags().IntVar(&opts.Orders, "orders", 20, "orders to create")
	cmd.Flags().IntVar(&opts.Quotes, "quotes", 10, "quotes to create")
	return cmd
}
