package identity

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/schema"
	"github.com/Adithya-Monish-Kumar-K/kvindex/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/kvindex/pkg/errors"
)

// ReconcileReport summarizes one Reconcile pass.
type ReconcileReport struct {
	Forward        int
	Reverse        int
	MissingReverse []int64
	MissingForward []int64
	Repaired       int
}

// Reconcile scans both directions of the bimap for rows whose counterpart is
// missing, the leftovers of partial Assign calls. With repair set it writes
// the missing counterpart. A reverse row whose key already has a forward row
// pointing at another id is a re-assigned key, not a gap, and is left alone.
func (m *Map) Reconcile(ctx context.Context, repair bool) (ReconcileReport, error) {
	var report ReconcileReport
	err := m.pool.With(ctx, m.table, func(t store.Table) error {
		err := t.Scan(ctx, m.schema.FamilyDocToInt, nil, func(pk []byte, cells []store.Cell) error {
			raw := qualifierValue(cells, m.schema.QualifierInt)
			if raw == nil {
				return nil
			}
			report.Forward++
			id, err := schema.DocID(raw)
			if err != nil {
				m.logger.Warn("undecodable forward row", "primary_key", string(pk), "error", err)
				return nil
			}
			docKey := schema.DocKey(id)
			_, err = t.GetCell(ctx, docKey, m.schema.FamilyIntToDoc, []byte(m.schema.QualifierDocument))
			if err == nil {
				return nil
			}
			if !apperrors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			report.MissingReverse = append(report.MissingReverse, id)
			if !repair {
				return nil
			}
			if err := t.Put(ctx, store.NewPut(docKey, m.schema.FamilyIntToDoc, []byte(m.schema.QualifierDocument), pk)); err != nil {
				return fmt.Errorf("repairing reverse row of %d: %w", id, err)
			}
			report.Repaired++
			return nil
		})
		if err != nil {
			return err
		}

		return t.Scan(ctx, m.schema.FamilyIntToDoc, nil, func(docKey []byte, cells []store.Cell) error {
			pk := qualifierValue(cells, m.schema.QualifierDocument)
			if pk == nil {
				return nil
			}
			report.Reverse++
			id, err := schema.DocID(docKey)
			if err != nil {
				m.logger.Warn("undecodable reverse row key", "row", docKey, "error", err)
				return nil
			}
			_, err = t.GetCell(ctx, pk, m.schema.FamilyDocToInt, []byte(m.schema.QualifierInt))
			if err == nil {
				return nil
			}
			if !apperrors.Is(err, apperrors.ErrNotFound) {
				return err
			}
			report.MissingForward = append(report.MissingForward, id)
			if !repair {
				return nil
			}
			if err := t.Put(ctx, store.NewPut(pk, m.schema.FamilyDocToInt, []byte(m.schema.QualifierInt), docKey)); err != nil {
				return fmt.Errorf("repairing forward row of %d: %w", id, err)
			}
			report.Repaired++
			return nil
		})
	})
	if err != nil {
		return report, fmt.Errorf("reconciling identity map: %w", err)
	}
	if len(report.MissingForward)+len(report.MissingReverse) > 0 {
		m.logger.Warn("identity map gaps found",
			"missing_forward", len(report.MissingForward),
			"missing_reverse", len(report.MissingReverse),
			"repaired", report.Repaired,
		)
	}
	return report, nil
}

func qualifierValue(cells []store.Cell, qualifier string) []byte {
	for _, c := range cells {
		if string(c.Qualifier) == qualifier {
			return c.Value
		}
	}
	return nil
}
