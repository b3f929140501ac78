package txlog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/codec"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
)

// CreateIndexTable provisions a table with every column family of sch. An
// existing table is an error unless force is set, in which case it is dropped
// and recreated empty.
func CreateIndexTable(ctx context.Context, admin store.Admin, name string, sch schema.Schema, force bool) error {
	exists, err := admin.TableExists(ctx, name)
	if err != nil {
		return fmt.Errorf("checking table %s: %w", name, err)
	}
	if exists {
		if !force {
			return fmt.Errorf("%w: %s", apperrors.ErrTableExists, name)
		}
		slog.Default().With("component", "txlog").Warn("recreating index table", "table", name)
		if err := admin.DropTable(ctx, name); err != nil {
			return fmt.Errorf("dropping table %s: %w", name, err)
		}
	}
	if err := admin.CreateTable(ctx, name, sch.Families()); err != nil {
		return fmt.Errorf("creating table %s: %w", name, err)
	}
	return nil
}

// DropIndexTable removes the table and everything in it.
func DropIndexTable(ctx context.Context, admin store.Admin, name string) error {
	if err := admin.DropTable(ctx, name); err != nil {
		return fmt.Errorf("dropping table %s: %w", name, err)
	}
	return nil
}

// RecordedCodec returns the codec an index was initialized with. Readers
// use it to decode positions without being told the codec.
func RecordedCodec(ctx context.Context, t store.Table, sch schema.Schema) (codec.Codec, error) {
	recorded, err := t.GetCell(ctx, sch.RowMeta, sch.FamilySequence, []byte(sch.QualifierCodec))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: table %s has no codec record", apperrors.ErrNotInitialized, t.Name())
		}
		return nil, fmt.Errorf("reading codec record: %w", apperrors.Store("get", t.Name(), sch.RowMeta, err))
	}
	return codec.ByName(string(recorded))
}
