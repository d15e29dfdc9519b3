package sales

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/tillpoint/tillpoint/internal/platform/db"
	"github.com/tillpoint/tillpoint/internal/shared"
)

// HeldStore persists parked carts.
type HeldStore interface {
	InsertHeld(ctx context.Context, h HeldTransaction) error
	ListHeld(ctx context.Context) ([]HeldTransaction, error)
	// TakeHeld reads and deletes one held cart atomically.
	TakeHeld(ctx context.Context, holdID string) (HeldTransaction, error)
	DeleteHeld(ctx context.Context, holdID string) error
}

func (r *Repository) InsertHeld(ctx context.Context, h HeldTransaction) error {
	return r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		_, err := u.Exec(ctx, db.Insert("held_transactions", "hold_id", "data", "held_at"),
			h.HoldID, string(h.Data), h.HeldAt)
		return err
	})
}

func (r *Repository) ListHeld(ctx context.Context) ([]HeldTransaction, error) {
	var out []HeldTransaction
	err := r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		rows, err := u.Query(ctx, "SELECT hold_id, data, held_at FROM held_transactions ORDER BY held_at DESC, hold_id")
		if err != nil {
			return err
		}
		out = make([]HeldTransaction, 0, len(rows))
		for _, row := range rows {
			out = append(out, heldFromRow(row))
		}
		return nil
	})
	return out, err
}

func (r *Repository) TakeHeld(ctx context.Context, holdID string) (HeldTransaction, error) {
	var h HeldTransaction
	err := r.manager.InTx(ctx, func(ctx context.Context, u *db.Unit) error {
		row, err := u.QueryRow(ctx, "SELECT hold_id, data, held_at FROM held_transactions WHERE hold_id = ?", holdID)
		if errors.Is(err, db.ErrNoRows) {
			return shared.NotFound("sales: recall held", "held transaction %s not found", holdID)
		}
		if err != nil {
			return err
		}
		h = heldFromRow(row)
		_, err = u.Exec(ctx, "DELETE FROM held_transactions WHERE hold_id = ?", holdID)
		return err
	})
	return h, err
}

func (r *Repository) DeleteHeld(ctx context.Context, holdID string) error {
	return r.manager.Run(ctx, func(ctx context.Context, u *db.Unit) error {
		res, err := u.Exec(ctx, "DELETE FROM held_transactions WHERE hold_id = ?", holdID)
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return shared.NotFound("sales: discard held", "held transaction %s not found", holdID)
		}
		return nil
	})
}

func heldFromRow(row db.Row) HeldTransaction {
	return HeldTransaction{
		HoldID: row.String("hold_id"),
		Data:   json.RawMessage(row.String("data")),
		HeldAt: row.String("held_at"),
	}
}

// Hold parks an arbitrary cart document and returns its hold id.
func (s *Service) Hold(ctx context.Context, data json.RawMessage) (HeldTransaction, error) {
	const op = "sales: hold"
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return HeldTransaction{}, shared.Validation(op, "held data must be a JSON object")
	}
	h := HeldTransaction{
		HoldID: shared.ShortID(),
		Data:   json.RawMessage(trimmed),
		HeldAt: shared.Timestamp(s.now()),
	}
	if err := s.repo.InsertHeld(ctx, h); err != nil {
		return HeldTransaction{}, err
	}
	return h, nil
}

// ListHeld returns parked carts newest first.
func (s *Service) ListHeld(ctx context.Context) ([]HeldTransaction, error) {
	return s.repo.ListHeld(ctx)
}

// RecallHeld returns a parked cart and removes it.
func (s *Service) RecallHeld(ctx context.Context, holdID string) (HeldTransaction, error) {
	return s.repo.TakeHeld(ctx, holdID)
}

// DiscardHeld drops a parked cart.
func (s *Service) DiscardHeld(ctx context.Context, holdID string) error {
	return s.repo.DeleteHeld(ctx, holdID)
}
