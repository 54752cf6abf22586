package loan

import (
	"context"
	"fmt"
	"log/slog"

	"loanledger/internal/core"
	"loanledger/internal/storage"
)

// Timeline persists the loan schedule.
type Timeline struct {
	store storage.Store
}

func NewTimeline(store storage.Store) *Timeline {
	return &Timeline{store: store}
}

// Generate computes the schedule of terms and writes every obligation in one
// transaction. The timeline is created once: it fails with
// core.ErrTimelineExists when obligations are already stored.
func (t *Timeline) Generate(ctx context.Context, terms Terms) ([]core.Obligation, error) {
	schedule, err := Schedule(terms)
	if err != nil {
		return nil, fmt.Errorf("generate timeline: %w", err)
	}

	err = t.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		n, err := tx.CountObligations(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d obligations stored", core.ErrTimelineExists, n)
		}
		for i := range schedule {
			id, err := tx.InsertObligation(ctx, schedule[i])
			if err != nil {
				return fmt.Errorf("month %d %s: %w", schedule[i].Month, schedule[i].Kind, err)
			}
			schedule[i].ID = id
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate timeline: %w", err)
	}

	slog.InfoContext(ctx, "Generated loan timeline",
		"obligations", len(schedule),
		"first_due", terms.FirstDueDate.String(),
		"periods", terms.Periods)
	return schedule, nil
}

// List returns every obligation ordered by due date then id.
func (t *Timeline) List(ctx context.Context) ([]core.Obligation, error) {
	var out []core.Obligation
	err := t.store.WithTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.Obligations(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return out, nil
}
