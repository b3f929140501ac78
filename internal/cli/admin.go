package cli

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/codec"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/txlog"
	"github.com/spf13/cobra"
)

func (a *app) createCommand() *cobra.Command {
	var (
		codecName string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and initialize the index table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if codecName == "" {
				codecName = a.cfg.Store.Codec
			}
			c, err := codec.ByName(codecName)
			if err != nil {
				return err
			}
			st, pool, release, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer release()

			name := a.cfg.Store.Table
			if force {
				exists, err := st.TableExists(ctx, name)
				if err != nil {
					return err
				}
				if exists {
					if err := txlog.DropIndexTable(ctx, st, name); err != nil {
						return err
					}
				}
			}
			log := txlog.New(pool, name, txlog.WithCodec(c))
			if err := log.Init(ctx); err != nil {
				return err
			}
			defer log.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "created index %s (codec %s)\n", name, c.Name())
			return nil
		},
	}
	cmd.Flags().StringVar(&codecName, "codec", "", fmt.Sprintf("position codec, one of %v (default from config)", codec.Names()))
	cmd.Flags().BoolVar(&force, "force", false, "drop an existing table first")
	return cmd
}

func (a *app) dropCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drop",
		Short: "Drop the index table and everything in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, _, release, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer release()
			if err := txlog.DropIndexTable(ctx, st, a.cfg.Store.Table); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dropped index %s\n", a.cfg.Store.Table)
			return nil
		},
	}
}
