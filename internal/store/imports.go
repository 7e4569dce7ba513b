package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/storelink/lotterysync/internal/lotteryimport"
)

const pgUniqueViolation = "23505"

// CreatePendingImport persists a validation snapshot. Rows, options and
// summary go into JSONB columns so the commit phase replays exactly what
// the user previewed.
func (s *Store) CreatePendingImport(ctx context.Context, imp *lotteryimport.PendingImport) error {
	rowsJSON, err := json.Marshal(imp.Rows)
	if err != nil {
		return fmt.Errorf("marshal import rows: %w", err)
	}
	optsJSON, err := json.Marshal(imp.Options)
	if err != nil {
		return fmt.Errorf("marshal import options: %w", err)
	}
	sumJSON, err := json.Marshal(imp.Summary)
	if err != nil {
		return fmt.Errorf("marshal import summary: %w", err)
	}

	const q = `
		INSERT INTO pending_imports (id, store_id, created_by, rows, options, summary, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`

	_, err = s.pool.Exec(ctx, q,
		imp.ID, imp.StoreID, imp.CreatedBy, rowsJSON, optsJSON, sumJSON, imp.Token, imp.ExpiresAt)
	if err != nil {
		return fmt.Errorf("create pending import: %w", err)
	}
	return nil
}

// FindPendingImportByToken returns (nil, nil) when the token resolves to
// nothing.
func (s *Store) FindPendingImportByToken(ctx context.Context, token string) (*lotteryimport.PendingImport, error) {
	const q = `
		SELECT id, store_id, created_by, rows, options, summary, token, expires_at, committed_at, commit_result
		FROM pending_imports
		WHERE token = $1`

	var (
		imp        lotteryimport.PendingImport
		rowsJSON   []byte
		optsJSON   []byte
		sumJSON    []byte
		resultJSON []byte
	)
	err := s.pool.QueryRow(ctx, q, token).Scan(
		&imp.ID, &imp.StoreID, &imp.CreatedBy, &rowsJSON, &optsJSON, &sumJSON,
		&imp.Token, &imp.ExpiresAt, &imp.CommittedAt, &resultJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending import: %w", err)
	}

	if err := json.Unmarshal(rowsJSON, &imp.Rows); err != nil {
		return nil, fmt.Errorf("unmarshal import rows: %w", err)
	}
	if err := json.Unmarshal(optsJSON, &imp.Options); err != nil {
		return nil, fmt.Errorf("unmarshal import options: %w", err)
	}
	if err := json.Unmarshal(sumJSON, &imp.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal import summary: %w", err)
	}
	if len(resultJSON) > 0 {
		imp.CommitResult = &lotteryimport.CommitSummary{}
		if err := json.Unmarshal(resultJSON, imp.CommitResult); err != nil {
			return nil, fmt.Errorf("unmarshal commit result: %w", err)
		}
	}
	return &imp, nil
}

// DeleteExpiredPendingImports removes uncommitted snapshots past their
// expiry. Committed records are kept as import history.
func (s *Store) DeleteExpiredPendingImports(ctx context.Context) (int64, error) {
	const q = `
		DELETE FROM pending_imports
		WHERE committed_at IS NULL AND expires_at < now()`

	tag, err := s.pool.Exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("delete expired imports: %w", err)
	}
	return tag.RowsAffected(), nil
}

// BeginCommit opens the transaction a commit runs in.
func (s *Store) BeginCommit(ctx context.Context) (lotteryimport.CommitTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin commit: %w", err)
	}
	return &commitTx{tx: tx}, nil
}

// commitTx runs all commit mutations in one transaction. Each CreateGame
// is wrapped in a savepoint: PostgreSQL poisons the whole transaction on
// any statement error, and the savepoint rollback recovers it so a
// unique-constraint race on one row does not abort the rest.
type commitTx struct {
	tx pgx.Tx
	n  int
}

func (c *commitTx) CreateGame(ctx context.Context, storeID string, row lotteryimport.GameRow) (string, error) {
	c.n++
	sp := fmt.Sprintf("sp_row_%d", c.n)
	if _, err := c.tx.Exec(ctx, "SAVEPOINT "+sp); err != nil {
		return "", fmt.Errorf("savepoint: %w", err)
	}

	const q = `
		INSERT INTO lottery_games (store_id, game_code, game_name, price, pack_value, tickets_per_pack, active)
		VALUES ($1, $2, $3, $4, NULLIF($5, 0.0), NULLIF($6, 0), true)
		RETURNING id`

	var id string
	err := c.tx.QueryRow(ctx, q,
		storeID, row.GameCode, row.GameName, row.Price, row.PackValue, row.TicketsPerPack).Scan(&id)
	if err != nil {
		if _, rbErr := c.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
			return "", fmt.Errorf("rollback savepoint: %w", rbErr)
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return "", lotteryimport.ErrDuplicateGame
		}
		return "", fmt.Errorf("create game %s: %w", row.GameCode, err)
	}

	if _, err := c.tx.Exec(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
		return "", fmt.Errorf("release savepoint: %w", err)
	}
	return id, nil
}

func (c *commitTx) UpdateGame(ctx context.Context, gameID string, row lotteryimport.GameRow) error {
	const q = `
		UPDATE lottery_games
		SET game_name = $2,
		    price = $3,
		    pack_value = NULLIF($4, 0.0),
		    tickets_per_pack = NULLIF($5, 0),
		    updated_at = now()
		WHERE id = $1`

	tag, err := c.tx.Exec(ctx, q, gameID, row.GameName, row.Price, row.PackValue, row.TicketsPerPack)
	if err != nil {
		return fmt.Errorf("update game %s: %w", gameID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update game %s: no rows affected", gameID)
	}
	return nil
}

// MarkCommitted stamps committed_at only if it is still unset, so two
// racing commits of the same token cannot both apply.
func (c *commitTx) MarkCommitted(ctx context.Context, importID string, at time.Time, result lotteryimport.CommitSummary) (bool, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return false, fmt.Errorf("marshal commit result: %w", err)
	}

	const q = `
		UPDATE pending_imports
		SET committed_at = $2, commit_result = $3
		WHERE id = $1 AND committed_at IS NULL`

	tag, err := c.tx.Exec(ctx, q, importID, at, resultJSON)
	if err != nil {
		return false, fmt.Errorf("mark committed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (c *commitTx) Commit(ctx context.Context) error {
	return c.tx.Commit(ctx)
}

func (c *commitTx) Rollback(ctx context.Context) error {
	return c.tx.Rollback(ctx)
}
