package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/search"
	"github.com/spf13/cobra"
)

func (a *app) searchCommand() *cobra.Command {
	var (
		query    string
		sortKeys []string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query the index",
		Long: `Match a query against the index and print the hits, ranked by relevance
or ordered by one stored field.

Examples:
  kvindex search -q "runway closed"
  kvindex search -q "body:flight NOT cancelled" --sort airport --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := search.Request{Query: query, Limit: limit}
			for _, f := range sortKeys {
				req.Sort = append(req.Sort, search.SortField{Field: f})
			}
			if _, err := search.ValidateSort(req.Sort); err != nil {
				return err
			}
			ctx := cmd.Context()
			_, pool, release, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer release()
			c, err := a.indexCodec(ctx, pool)
			if err != nil {
				return err
			}
			s := search.New(pool, a.cfg.Store.Table, schema.Default(), c,
				search.WithDefaultField(a.cfg.Search.DefaultField),
				search.WithLimits(a.cfg.Search.DefaultLimit, a.cfg.Search.MaxResults),
				search.WithFetchParallel(a.cfg.Search.FetchParallel),
			)
			res, err := s.Search(ctx, req)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			return printResult(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "query text (required)")
	cmd.Flags().StringArrayVar(&sortKeys, "sort", nil, "stored field to order by, or _score")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of results (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func (a *app) lookupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <primary-key>",
		Short: "Print a stored document by primary key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			_, pool, release, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer release()
			c, err := a.indexCodec(ctx, pool)
			if err != nil {
				return err
			}
			doc, err := search.New(pool, a.cfg.Store.Table, schema.Default(), c).Document(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), doc)
		},
	}
}

func printResult(w io.Writer, res *search.Result) error {
	fmt.Fprintf(w, "%d hits for %q, sorted by %s\n", res.TotalHits, res.Query, res.SortedBy)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOC\tKEY\tSCORE\tVALUE")
	for _, d := range res.Results {
		value := "-"
		if d.SortValue != nil {
			value = *d.SortValue
		}
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%s\n", d.DocID, d.PrimaryKey, d.Score, value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, term := range slices.Sorted(maps.Keys(res.TermStats)) {
		fmt.Fprintf(w, "  %s: %d\n", term, res.TermStats[term])
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
