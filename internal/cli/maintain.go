package cli

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/identity"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/segment"
	"github.com/spf13/cobra"
)

func (a *app) reconcileCommand() *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find and optionally repair half-written identity map entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, release, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer release()
			report, err := identity.New(pool, a.cfg.Store.Table, schema.Default()).Reconcile(ctx, repair)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "forward rows: %d\nreverse rows: %d\n", report.Forward, report.Reverse)
			fmt.Fprintf(out, "missing reverse: %v\nmissing forward: %v\n", report.MissingReverse, report.MissingForward)
			if repair {
				fmt.Fprintf(out, "repaired: %d\n", report.Repaired)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "write the missing counterpart rows")
	return cmd
}

func (a *app) segmentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "segments <field/text>",
		Short: "List the flushed-segment documents of a term",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term, err := schema.ParseTerm(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			_, pool, release, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer release()
			r := segment.NewReader(pool, a.cfg.Store.Table, schema.Default())
			n, err := r.Segments(ctx)
			if err != nil {
				return err
			}
			docs, err := r.Docs(ctx, term.String())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d documents across %d segments\n%v\n",
				term, docs.GetCardinality(), n, docs.ToArray())
			return nil
		},
	}
}
