// Package lotteryimport implements the two-phase bulk import of lottery
// games from CSV uploads.
//
// Phase one (Validate) parses and validates the file, cross-checks it
// against the store's existing catalog, and persists a pending-import
// snapshot behind a short-lived single-use token. Phase two (Commit)
// redeems the token and applies the snapshot atomically. The commit
// operates on the exact rows the user previewed, immune to concurrent
// catalog changes between the phases.
package lotteryimport

import (
	"context"
	"errors"
	"time"
)

// RowStatus is the validation outcome of a single CSV row.
type RowStatus string

const (
	StatusValid     RowStatus = "valid"
	StatusError     RowStatus = "error"
	StatusDuplicate RowStatus = "duplicate"
)

// RowAction is what commit will do with a row, derived from its status
// plus the caller's options.
type RowAction string

const (
	ActionCreate RowAction = "create"
	ActionUpdate RowAction = "update"
	ActionSkip   RowAction = "skip"
)

// GameRow is the typed payload of one validated CSV row.
type GameRow struct {
	GameCode       string  `json:"game_code"`
	GameName       string  `json:"game_name"`
	Price          float64 `json:"price"`
	PackValue      float64 `json:"pack_value,omitempty"`
	TicketsPerPack int     `json:"tickets_per_pack,omitempty"`
}

// ExistingGame is the snapshot of a catalog record captured at validation
// time, shown to the user as the "current" side of an update diff.
type ExistingGame struct {
	ID             string  `json:"id"`
	GameCode       string  `json:"game_code"`
	GameName       string  `json:"game_name"`
	Price          float64 `json:"price"`
	PackValue      float64 `json:"pack_value,omitempty"`
	TicketsPerPack int     `json:"tickets_per_pack,omitempty"`
}

// ValidatedRow is the tagged per-row validation outcome persisted in the
// pending-import snapshot.
type ValidatedRow struct {
	RowNumber int           `json:"row_number"`
	Status    RowStatus     `json:"status"`
	Action    RowAction     `json:"action,omitempty"`
	Data      GameRow       `json:"data"`
	Existing  *ExistingGame `json:"existing_game,omitempty"`
	Errors    []string      `json:"errors,omitempty"`
}

// Options are the caller's choices at validation time.
type Options struct {
	// UpdateExisting tags rows matching an existing game as updates
	// instead of skipped duplicates.
	UpdateExisting bool `json:"update_existing"`
}

// CommitOptions are the caller's choices at commit time.
type CommitOptions struct {
	// SkipErrors skips rows that failed validation. When false, the
	// presence of any error row rejects the whole commit before any
	// mutation.
	SkipErrors bool `json:"skip_errors"`

	// UpdateDuplicates processes rows tagged duplicate as updates.
	UpdateDuplicates bool `json:"update_duplicates"`
}

// Summary is the row-count breakdown of a validation or commit.
type Summary struct {
	TotalRows     int `json:"totalRows"`
	ValidRows     int `json:"validRows"`
	ErrorRows     int `json:"errorRows"`
	DuplicateRows int `json:"duplicateRows"`
}

// CommitSummary is the outcome breakdown of a commit.
type CommitSummary struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// PendingImport is the persisted snapshot linking a validation to a later
// commit. CommittedAt is set at most once.
type PendingImport struct {
	ID            string
	StoreID       string
	CreatedBy     string
	Rows          []ValidatedRow
	Options       Options
	Summary       Summary
	Token         string
	ExpiresAt     time.Time
	CommittedAt   *time.Time
	CommitResult  *CommitSummary
}

// StoreInfo is the scope record checked by validation preconditions.
type StoreInfo struct {
	ID             string
	Name           string
	Active         bool
	LotteryEnabled bool
}

// CreatedGame identifies a catalog record created by a commit.
type CreatedGame struct {
	ID       string `json:"id"`
	GameCode string `json:"gameCode"`
}

// Commit guard failures. Each is a hard rejection with no partial effect.
var (
	ErrTokenNotFound    = errors.New("validation token not found")
	ErrAlreadyCommitted = errors.New("import already committed")
	ErrExpiredToken     = errors.New("validation token expired")

	// ErrErrorRowsPresent rejects a commit with skip_errors=false while
	// the snapshot contains error rows.
	ErrErrorRowsPresent = errors.New("import contains error rows and skip_errors is false")

	// ErrDuplicateGame is returned by CommitTx.CreateGame on a
	// unique-constraint violation: another actor created the same game
	// code between validation and commit.
	ErrDuplicateGame = errors.New("game code already exists")
)

// Repository is the narrow slice of the relational store this package
// consumes. internal/store provides the pgx implementation.
type Repository interface {
	// FindStore returns (nil, nil) when the store does not exist.
	FindStore(ctx context.Context, storeID string) (*StoreInfo, error)

	// ListActiveGames returns the store's current catalog, loaded once
	// before the row loop for O(1) membership testing.
	ListActiveGames(ctx context.Context, storeID string) ([]ExistingGame, error)

	CreatePendingImport(ctx context.Context, imp *PendingImport) error

	// FindPendingImportByToken returns (nil, nil) when the token resolves
	// to nothing.
	FindPendingImportByToken(ctx context.Context, token string) (*PendingImport, error)

	// BeginCommit opens the transaction all commit mutations run in.
	BeginCommit(ctx context.Context) (CommitTx, error)

	// DeleteExpiredPendingImports removes uncommitted imports whose
	// expiry has passed. Returns the number deleted.
	DeleteExpiredPendingImports(ctx context.Context) (int64, error)
}

// CommitTx is a single commit transaction. CreateGame reports a
// unique-constraint race as ErrDuplicateGame with the transaction still
// usable; any other error poisons the transaction.
type CommitTx interface {
	CreateGame(ctx context.Context, storeID string, row GameRow) (string, error)
	UpdateGame(ctx context.Context, gameID string, row GameRow) error

	// MarkCommitted conditionally stamps committed_at, returning false
	// when the record was already committed by a concurrent caller.
	MarkCommitted(ctx context.Context, importID string, at time.Time, result CommitSummary) (bool, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
