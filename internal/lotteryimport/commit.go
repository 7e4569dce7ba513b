package lotteryimport

import (
	"context"
	"errors"
	"fmt"

	"github.com/storelink/lotterysync/internal/audit"
)

// CommitRequest redeems a validation token.
type CommitRequest struct {
	ValidationToken string
	UserID          string
	Options         CommitOptions
}

// CommitResult is the outcome of a successful commit.
type CommitResult struct {
	Success      bool          `json:"success"`
	Summary      CommitSummary `json:"summary"`
	CreatedGames []CreatedGame `json:"createdGames,omitempty"`
}

// Commit runs the commit phase: guard checks, then an all-or-nothing
// create/update transaction over the snapshot rows.
//
// Guard failures surface as the package sentinels (ErrTokenNotFound,
// ErrAlreadyCommitted, ErrExpiredToken, ErrErrorRowsPresent) with no
// partial effect. A per-row unique-constraint race is counted as failed
// and does not abort the transaction; any other repository error rolls
// everything back and is returned wrapped.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	imp, err := s.repo.FindPendingImportByToken(ctx, req.ValidationToken)
	if err != nil {
		return nil, fmt.Errorf("find pending import: %w", err)
	}
	if imp == nil {
		return nil, ErrTokenNotFound
	}
	if imp.CommittedAt != nil {
		return nil, ErrAlreadyCommitted
	}
	now := s.now()
	if now.After(imp.ExpiresAt) {
		return nil, ErrExpiredToken
	}
	if !req.Options.SkipErrors && imp.Summary.ErrorRows > 0 {
		return nil, ErrErrorRowsPresent
	}

	tx, err := s.repo.BeginCommit(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin commit: %w", err)
	}
	// No-op after a successful Commit.
	defer tx.Rollback(ctx)

	result := &CommitResult{}
	sum := &result.Summary

	for _, row := range imp.Rows {
		switch {
		case row.Status == StatusError:
			sum.Skipped++

		case row.Status == StatusDuplicate && !req.Options.UpdateDuplicates:
			sum.Skipped++

		case row.Status == StatusDuplicate || row.Action == ActionUpdate:
			if row.Existing == nil {
				// Snapshot invariant broken; treat as unexpected.
				return nil, fmt.Errorf("row %d: update without existing snapshot", row.RowNumber)
			}
			if err := tx.UpdateGame(ctx, row.Existing.ID, withDerivedTickets(row.Data)); err != nil {
				return nil, fmt.Errorf("row %d: update game: %w", row.RowNumber, err)
			}
			sum.Updated++

		default: // valid / create
			id, err := tx.CreateGame(ctx, imp.StoreID, withDerivedTickets(row.Data))
			if errors.Is(err, ErrDuplicateGame) {
				// Lost the race to another import; record and continue.
				sum.Failed++
				sum.Errors = append(sum.Errors, fmt.Sprintf("row %d: game_code %s was created concurrently", row.RowNumber, row.Data.GameCode))
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("row %d: create game: %w", row.RowNumber, err)
			}
			sum.Created++
			result.CreatedGames = append(result.CreatedGames, CreatedGame{ID: id, GameCode: row.Data.GameCode})
		}
	}

	// Stamp committed_at inside the same transaction so the token can
	// never be replayed, even if the process dies right after commit.
	ok, err := tx.MarkCommitted(ctx, imp.ID, now, result.Summary)
	if err != nil {
		return nil, fmt.Errorf("mark committed: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyCommitted
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	result.Success = true

	s.writeAudit(ctx, audit.Entry{
		Action:   audit.ActionImportCommitted,
		StoreID:  imp.StoreID,
		ObjectID: imp.ID,
		UserID:   req.UserID,
		Detail: map[string]any{
			"created": sum.Created,
			"updated": sum.Updated,
			"skipped": sum.Skipped,
			"failed":  sum.Failed,
		},
	})

	return result, nil
}

// withDerivedTickets fills the derived ticket count using the same pure
// function validation used, keeping preview and commit totals aligned.
func withDerivedTickets(row GameRow) GameRow {
	row.TicketsPerPack = DeriveTicketsPerPack(row.TicketsPerPack, row.PackValue, row.Price)
	return row
}
