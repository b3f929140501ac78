// Package cli implements the kvindex command line: index administration,
// document loading, queries and identity-map maintenance against the store
// named by configuration.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/codec"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store/backend"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/txlog"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kvindex/pkg/logger"
	"github.com/spf13/cobra"
)

// app carries state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	table   string
	cfg     *config.Config
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "kvindex",
		Short: "Inverted index over a column-family key-value store",
		Long: `kvindex manages an inverted index kept in a sorted column-family store
(in-memory, bbolt, Redis or PostgreSQL).

Example usage:
  kvindex create --codec zstd           # Provision the index table
  kvindex add docs.jsonl                # Index documents
  kvindex search -q "delayed flight"    # Rank by relevance
  kvindex search -q flight --sort code  # Order by a stored field`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if a.table != "" {
				cfg.Store.Table = a.table
			}
			a.cfg = cfg
			logger.SetupWriter(cmd.ErrOrStderr(), cfg.Logging.Level, "text")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (defaults and KVX_* environment when empty)")
	root.PersistentFlags().StringVarP(&a.table, "table", "t", "", "index table (overrides store.table)")

	root.AddCommand(
		a.createCommand(),
		a.dropCommand(),
		a.addCommand(),
		a.searchCommand(),
		a.lookupCommand(),
		a.reconcileCommand(),
		a.segmentsCommand(),
	)
	return root
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// connect opens the configured store and a handle pool over it. The returned
// function releases both.
func (a *app) connect(ctx context.Context) (store.Store, *store.Pool, func(), error) {
	st, err := backend.Open(ctx, a.cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	pool := store.NewPool(st, a.cfg.Store.MaxIdle)
	return st, pool, func() {
		_ = pool.Close()
		_ = st.Close()
	}, nil
}

// indexCodec reads the codec recorded in the index table.
func (a *app) indexCodec(ctx context.Context, pool *store.Pool) (codec.Codec, error) {
	var c codec.Codec
	err := pool.With(ctx, a.cfg.Store.Table, func(t store.Table) error {
		var err error
		c, err = txlog.RecordedCodec(ctx, t, schema.Default())
		return err
	})
	return c, err
}
