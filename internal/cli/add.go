package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/txlog"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func (a *app) addCommand() *cobra.Command {
	var (
		batchSize int
		progress  bool
	)
	cmd := &cobra.Command{
		Use:   "add [file|glob...]",
		Short: "Index documents from JSON or JSON Lines files",
		Long: `Index documents read from files, or from stdin when no file or "-" is
given. Input is either a JSON array or a stream of JSON objects, each shaped
{"primary_key": "...", "fields": {"name": "value"}}.

Examples:
  kvindex add flights.json
  kvindex add 'data/**/*.jsonl' --progress
  cat flights.json | kvindex add -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if batchSize < 1 {
				return fmt.Errorf("batch size must be positive, got %d", batchSize)
			}
			paths, err := expandPaths(args)
			if err != nil {
				return err
			}
			docs, err := readDocuments(cmd.InOrStdin(), paths)
			if err != nil {
				return err
			}
			_, pool, release, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer release()

			log := txlog.New(pool, a.cfg.Store.Table, txlog.WithMaxTermVector(a.cfg.Index.MaxTermVector))
			if err := log.Open(ctx); err != nil {
				return err
			}
			defer log.Close()
			engine := indexer.NewEngine(log,
				indexer.WithIndexedFields(a.cfg.Index.IndexedFields...),
				indexer.WithCommitRetry(a.cfg.Index.CommitRetries, a.cfg.Index.RetryDelay),
			)

			var bar *progressbar.ProgressBar
			if progress {
				bar = progressbar.NewOptions(len(docs),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionSetWidth(40),
					progressbar.OptionShowCount(),
					progressbar.OptionSetDescription("indexing"),
					progressbar.OptionOnCompletion(func() {
						fmt.Fprintln(cmd.ErrOrStderr())
					}),
				)
			}

			indexed := 0
			for start := 0; start < len(docs); start += batchSize {
				out, err := engine.IndexBatch(ctx, docs[start:min(start+batchSize, len(docs))])
				indexed += len(out)
				if bar != nil {
					_ = bar.Add(len(out))
				}
				if err != nil {
					return fmt.Errorf("indexed %d of %d documents: %w", indexed, len(docs), err)
				}
			}
			flushed, err := engine.Flush(ctx)
			if err != nil {
				return fmt.Errorf("flushing segment: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents (segment %d, %d terms)\n",
				indexed, flushed.SegmentID, flushed.Terms)
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch", 500, "documents per commit")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar on stderr")
	return cmd
}

// expandPaths resolves glob arguments, including "**", into file paths in
// lexical order. Plain paths and "-" pass through untouched.
func expandPaths(args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		if arg == "-" || !hasMeta(arg) {
			out = append(out, arg)
			continue
		}
		if !doublestar.ValidatePathPattern(arg) {
			return nil, fmt.Errorf("invalid glob %q", arg)
		}
		matches, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", arg)
		}
		slices.Sort(matches)
		out = append(out, matches...)
	}
	return out, nil
}

func hasMeta(path string) bool {
	for _, c := range filepath.ToSlash(path) {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

func readDocuments(stdin io.Reader, paths []string) ([]indexer.Document, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	var docs []indexer.Document
	for _, p := range paths {
		var r io.Reader = stdin
		if p != "-" {
			f, err := os.Open(p)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			r = f
		}
		got, err := decodeDocuments(r)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		docs = append(docs, got...)
	}
	return docs, nil
}

// decodeDocuments accepts a JSON array or concatenated JSON objects.
func decodeDocuments(r io.Reader) ([]indexer.Document, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return nil, err
		}
		dec := json.NewDecoder(br)
		if b == '[' {
			var docs []indexer.Document
			if err := dec.Decode(&docs); err != nil {
				return nil, err
			}
			return docs, nil
		}
		var docs []indexer.Document
		for {
			var d indexer.Document
			if err := dec.Decode(&d); errors.Is(err, io.EOF) {
				return docs, nil
			} else if err != nil {
				return nil, fmt.Errorf("document %d: %w", len(docs)+1, err)
			}
			docs = append(docs, d)
		}
	}
}
