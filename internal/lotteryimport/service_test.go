package lotteryimport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

// ============================================================================
// Fakes
// ============================================================================

type fakeRepo struct {
	store   *StoreInfo
	games   []ExistingGame
	imports map[string]*PendingImport // by token

	// raceCodes simulates another actor creating these game codes
	// between validation and commit.
	raceCodes map[string]bool

	// failCreate makes CreateGame fail with an unexpected error.
	failCreate bool

	createdRows []GameRow
	updatedIDs  []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		store:     &StoreInfo{ID: "store-1", Name: "Main St", Active: true, LotteryEnabled: true},
		imports:   map[string]*PendingImport{},
		raceCodes: map[string]bool{},
	}
}

func (f *fakeRepo) FindStore(_ context.Context, storeID string) (*StoreInfo, error) {
	if f.store == nil || f.store.ID != storeID {
		return nil, nil
	}
	return f.store, nil
}

func (f *fakeRepo) ListActiveGames(context.Context, string) ([]ExistingGame, error) {
	return f.games, nil
}

func (f *fakeRepo) CreatePendingImport(_ context.Context, imp *PendingImport) error {
	cp := *imp
	f.imports[imp.Token] = &cp
	return nil
}

func (f *fakeRepo) FindPendingImportByToken(_ context.Context, token string) (*PendingImport, error) {
	imp, ok := f.imports[token]
	if !ok {
		return nil, nil
	}
	cp := *imp
	return &cp, nil
}

func (f *fakeRepo) BeginCommit(context.Context) (CommitTx, error) {
	return &fakeTx{repo: f}, nil
}

func (f *fakeRepo) DeleteExpiredPendingImports(context.Context) (int64, error) {
	var n int64
	for token, imp := range f.imports {
		if imp.CommittedAt == nil && time.Now().After(imp.ExpiresAt) {
			delete(f.imports, token)
			n++
		}
	}
	return n, nil
}

// fakeTx stages mutations and applies them on Commit, mirroring the
// all-or-nothing semantics of the real transaction.
type fakeTx struct {
	repo      *fakeRepo
	created   []GameRow
	updated   []string
	stampID   string
	stampAt   time.Time
	stampRes  CommitSummary
	committed bool
}

func (t *fakeTx) CreateGame(_ context.Context, _ string, row GameRow) (string, error) {
	if t.repo.failCreate {
		return "", errors.New("connection reset")
	}
	if t.repo.raceCodes[row.GameCode] {
		return "", ErrDuplicateGame
	}
	t.created = append(t.created, row)
	return fmt.Sprintf("game-%s", row.GameCode), nil
}

func (t *fakeTx) UpdateGame(_ context.Context, gameID string, _ GameRow) error {
	t.updated = append(t.updated, gameID)
	return nil
}

func (t *fakeTx) MarkCommitted(_ context.Context, importID string, at time.Time, result CommitSummary) (bool, error) {
	for _, imp := range t.repo.imports {
		if imp.ID == importID {
			if imp.CommittedAt != nil {
				return false, nil
			}
			t.stampID = importID
			t.stampAt = at
			t.stampRes = result
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.repo.createdRows = append(t.repo.createdRows, t.created...)
	t.repo.updatedIDs = append(t.repo.updatedIDs, t.updated...)
	for _, imp := range t.repo.imports {
		if imp.ID == t.stampID {
			at := t.stampAt
			res := t.stampRes
			imp.CommittedAt = &at
			imp.CommitResult = &res
		}
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error { return nil }

func newTestService(repo *fakeRepo) *Service {
	return NewService(repo, nil, Config{})
}

const sampleCSV = "Game Code,Game Name,Price,Pack Value\n" +
	"0001,Lucky 7s,20,300\n" +
	"0002,Mega Bucks,10,300\n" +
	"0003,Gold Rush,5,150\n"

func validateSample(t *testing.T, s *Service, data string, opts Options) *ValidateResult {
	t.Helper()
	res, err := s.Validate(context.Background(), ValidateRequest{
		FileData: []byte(data),
		StoreID:  "store-1",
		UserID:   "user-1",
		Options:  opts,
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return res
}

// ============================================================================
// Validate: preconditions
// ============================================================================

func TestValidateStorePreconditions(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*fakeRepo)
		wantErr string
	}{
		{"missing store", func(r *fakeRepo) { r.store = nil }, "store not found"},
		{"inactive store", func(r *fakeRepo) { r.store.Active = false }, "store is inactive"},
		{"lottery disabled", func(r *fakeRepo) { r.store.LotteryEnabled = false }, "lottery"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeRepo()
			tt.mutate(repo)
			s := newTestService(repo)

			res := validateSample(t, s, sampleCSV, Options{})
			if res.Success {
				t.Fatal("Success = true, want false")
			}
			if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], tt.wantErr) {
				t.Errorf("Errors = %v, want %q", res.Errors, tt.wantErr)
			}
			if len(repo.imports) != 0 {
				t.Error("precondition failure must not persist anything")
			}
		})
	}
}

func TestValidateMissingHeaders(t *testing.T) {
	s := newTestService(newFakeRepo())
	res := validateSample(t, s, "Name,Price\nLucky,20\n", Options{})
	if res.Success {
		t.Fatal("Success = true for a file missing game_code")
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "game_code") {
		t.Errorf("Errors = %v", res.Errors)
	}
}

// ============================================================================
// Validate: row classification
// ============================================================================

func TestValidateAllCreates(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(repo)

	res := validateSample(t, s, sampleCSV, Options{})
	if !res.Success {
		t.Fatalf("result: %+v", res)
	}
	if res.ValidationToken == "" || res.ExpiresAt == nil {
		t.Fatal("token/expiry missing")
	}
	if got := res.ExpiresAt.Sub(time.Now()); got > DefaultTokenTTL || got < DefaultTokenTTL-time.Minute {
		t.Errorf("expiry window = %v, want ~15m", got)
	}
	want := Summary{TotalRows: 3, ValidRows: 3}
	if res.Preview != want {
		t.Errorf("preview = %+v, want %+v", res.Preview, want)
	}
	for _, row := range res.Rows {
		if row.Status != StatusValid || row.Action != ActionCreate {
			t.Errorf("row %d: %s/%s, want valid/create", row.RowNumber, row.Status, row.Action)
		}
	}
	if _, ok := repo.imports[res.ValidationToken]; !ok {
		t.Error("pending import not persisted")
	}
}

func TestValidateSchemaErrors(t *testing.T) {
	s := newTestService(newFakeRepo())
	csv := "Game Code,Game Name,Price,Pack Value\n" +
		"12,Lucky,20,300\n" + // bad game code
		"0002,,10,300\n" + // missing name
		"0003,Gold,zero,150\n" + // bad price
		"0004,Fine,5,\n" // no pack value and no tickets

	res := validateSample(t, s, csv, Options{})
	if res.Success {
		t.Fatal("no valid rows, Success must be false")
	}
	if res.Preview.ErrorRows != 4 {
		t.Errorf("error rows = %d, want 4", res.Preview.ErrorRows)
	}
	if res.ValidationToken != "" {
		t.Error("token must not be issued with zero valid rows")
	}
}

func TestValidateInFileDuplicate(t *testing.T) {
	s := newTestService(newFakeRepo())
	csv := "Game Code,Game Name,Price,Pack Value\n" +
		"0001,Lucky 7s,20,300\n" +
		"0001,Lucky Again,20,300\n"

	res := validateSample(t, s, csv, Options{})
	if res.Preview.ValidRows != 1 || res.Preview.ErrorRows != 1 {
		t.Fatalf("preview = %+v", res.Preview)
	}
	dup := res.Rows[1]
	if dup.Status != StatusError {
		t.Errorf("second occurrence status = %s, want error", dup.Status)
	}
	if len(dup.Errors) == 0 || !strings.Contains(dup.Errors[0], "row 1") {
		t.Errorf("duplicate error %v should reference row 1", dup.Errors)
	}
}

func TestValidateExistingGameWithoutUpdateOption(t *testing.T) {
	repo := newFakeRepo()
	repo.games = []ExistingGame{{ID: "g-1", GameCode: "0001", GameName: "Lucky 7s", Price: 20}}
	s := newTestService(repo)

	res := validateSample(t, s, sampleCSV, Options{})
	row := res.Rows[0]
	if row.Status != StatusDuplicate || row.Action != ActionSkip {
		t.Errorf("row = %s/%s, want duplicate/skip", row.Status, row.Action)
	}
	if row.Existing == nil || row.Existing.ID != "g-1" {
		t.Errorf("existing snapshot = %+v", row.Existing)
	}
	if res.Preview.DuplicateRows != 1 || res.Preview.ValidRows != 2 {
		t.Errorf("preview = %+v", res.Preview)
	}
}

func TestValidateExistingGameWithUpdateOption(t *testing.T) {
	repo := newFakeRepo()
	repo.games = []ExistingGame{{ID: "g-1", GameCode: "0001", GameName: "Old Name", Price: 15}}
	s := newTestService(repo)

	res := validateSample(t, s, sampleCSV, Options{UpdateExisting: true})
	row := res.Rows[0]
	if row.Status != StatusValid || row.Action != ActionUpdate {
		t.Errorf("row = %s/%s, want valid/update", row.Status, row.Action)
	}
	if row.Existing == nil || row.Existing.GameName != "Old Name" {
		t.Errorf("existing snapshot = %+v, want captured current values", row.Existing)
	}
}

// ============================================================================
// Commit: guards
// ============================================================================

func TestCommitTokenNotFound(t *testing.T) {
	s := newTestService(newFakeRepo())
	_, err := s.Commit(context.Background(), CommitRequest{ValidationToken: "nope"})
	if !errors.Is(err, ErrTokenNotFound) {
		t.Errorf("err = %v, want ErrTokenNotFound", err)
	}
}

func TestCommitExpiredToken(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(repo)

	res := validateSample(t, s, sampleCSV, Options{})
	repo.imports[res.ValidationToken].ExpiresAt = time.Now().Add(-time.Minute)

	_, err := s.Commit(context.Background(), CommitRequest{ValidationToken: res.ValidationToken, Options: CommitOptions{SkipErrors: true}})
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("err = %v, want ErrExpiredToken", err)
	}
	if len(repo.createdRows) != 0 {
		t.Error("expired commit must mutate nothing")
	}
}

func TestCommitTokenSingleUse(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(repo)

	res := validateSample(t, s, sampleCSV, Options{})
	req := CommitRequest{ValidationToken: res.ValidationToken, Options: CommitOptions{SkipErrors: true, UpdateDuplicates: true}}

	first, err := s.Commit(context.Background(), req)
	if err != nil || !first.Success {
		t.Fatalf("first commit: %v %+v", err, first)
	}

	_, err = s.Commit(context.Background(), req)
	if !errors.Is(err, ErrAlreadyCommitted) {
		t.Fatalf("second commit err = %v, want ErrAlreadyCommitted", err)
	}
	if len(repo.createdRows) != 3 {
		t.Errorf("created %d games across two commits, want 3", len(repo.createdRows))
	}
}

func TestCommitErrorRowsRejectedWithoutSkipErrors(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(repo)

	csv := "Game Code,Game Name,Price,Pack Value\n" +
		"0001,Lucky 7s,20,300\n" +
		"bad,Oops,20,300\n"
	res := validateSample(t, s, csv, Options{})

	_, err := s.Commit(context.Background(), CommitRequest{ValidationToken: res.ValidationToken, Options: CommitOptions{SkipErrors: false}})
	if !errors.Is(err, ErrErrorRowsPresent) {
		t.Fatalf("err = %v, want ErrErrorRowsPresent", err)
	}
	if len(repo.createdRows) != 0 {
		t.Error("rejected commit must mutate nothing")
	}
}

// ============================================================================
// Commit: row processing
// ============================================================================

func TestCommitRoundTrip(t *testing.T) {
	repo := newFakeRepo()
	repo.games = []ExistingGame{{ID: "g-1", GameCode: "0002", GameName: "Mega Bucks", Price: 10}}
	s := newTestService(repo)

	csv := "Game Code,Game Name,Price,Pack Value\n" +
		"0001,Lucky 7s,20,300\n" + // create
		"0002,Mega Bucks,10,300\n" + // duplicate
		"bad,Oops,20,300\n" + // error
		"0003,Gold Rush,5,150\n" // create
	res := validateSample(t, s, csv, Options{})

	out, err := s.Commit(context.Background(), CommitRequest{
		ValidationToken: res.ValidationToken,
		Options:         CommitOptions{SkipErrors: true, UpdateDuplicates: true},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}

	sum := out.Summary
	if got := sum.Created + sum.Updated + sum.Skipped; got != res.Preview.TotalRows {
		t.Errorf("created+updated+skipped = %d, want totalRows %d", got, res.Preview.TotalRows)
	}
	if sum.Failed != 0 {
		t.Errorf("failed = %d, want 0", sum.Failed)
	}
	if sum.Created != 2 || sum.Updated != 1 || sum.Skipped != 1 {
		t.Errorf("summary = %+v", sum)
	}
	if len(out.CreatedGames) != 2 || out.CreatedGames[0].GameCode != "0001" {
		t.Errorf("created games = %+v", out.CreatedGames)
	}
	if len(repo.updatedIDs) != 1 || repo.updatedIDs[0] != "g-1" {
		t.Errorf("updated ids = %v", repo.updatedIDs)
	}
}

func TestCommitDuplicatesSkippedByDefault(t *testing.T) {
	repo := newFakeRepo()
	repo.games = []ExistingGame{{ID: "g-1", GameCode: "0001", GameName: "Lucky 7s", Price: 20}}
	s := newTestService(repo)

	res := validateSample(t, s, sampleCSV, Options{})
	out, err := s.Commit(context.Background(), CommitRequest{
		ValidationToken: res.ValidationToken,
		Options:         CommitOptions{SkipErrors: true},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if out.Summary.Updated != 0 || out.Summary.Skipped != 1 || out.Summary.Created != 2 {
		t.Errorf("summary = %+v", out.Summary)
	}
}

func TestCommitConstraintRaceCountedNotFatal(t *testing.T) {
	repo := newFakeRepo()
	repo.raceCodes["0002"] = true
	s := newTestService(repo)

	res := validateSample(t, s, sampleCSV, Options{})
	out, err := s.Commit(context.Background(), CommitRequest{
		ValidationToken: res.ValidationToken,
		Options:         CommitOptions{SkipErrors: true},
	})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !out.Success {
		t.Fatal("a per-row race must not fail the commit")
	}
	if out.Summary.Failed != 1 || out.Summary.Created != 2 {
		t.Errorf("summary = %+v", out.Summary)
	}
	if len(out.Summary.Errors) != 1 || !strings.Contains(out.Summary.Errors[0], "0002") {
		t.Errorf("errors = %v", out.Summary.Errors)
	}
}

func TestCommitUnexpectedErrorAborts(t *testing.T) {
	repo := newFakeRepo()
	repo.failCreate = true
	s := newTestService(repo)

	res := validateSample(t, s, sampleCSV, Options{})
	_, err := s.Commit(context.Background(), CommitRequest{
		ValidationToken: res.ValidationToken,
		Options:         CommitOptions{SkipErrors: true},
	})
	if err == nil {
		t.Fatal("unexpected repository error must propagate")
	}
	if len(repo.createdRows) != 0 {
		t.Error("aborted commit must leave nothing applied")
	}
	// The token must remain redeemable after a rollback.
	if repo.imports[res.ValidationToken].CommittedAt != nil {
		t.Error("rollback must not leave committed_at set")
	}
}

// ============================================================================
// Derived field
// ============================================================================

func TestDeriveTicketsPerPack(t *testing.T) {
	tests := []struct {
		name      string
		explicit  int
		packValue float64
		price     float64
		want      int
	}{
		{"explicit wins", 50, 300, 20, 50},
		{"derived floor", 0, 300, 20, 15},
		{"derived rounds down", 0, 299, 20, 14},
		{"no price", 0, 300, 0, 0},
		{"no pack value", 0, 0, 20, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveTicketsPerPack(tt.explicit, tt.packValue, tt.price); got != tt.want {
				t.Errorf("DeriveTicketsPerPack(%d, %v, %v) = %d, want %d", tt.explicit, tt.packValue, tt.price, got, tt.want)
			}
		})
	}
}

func TestCommitAppliesDerivedTickets(t *testing.T) {
	repo := newFakeRepo()
	s := newTestService(repo)

	csv := "Game Code,Game Name,Price,Pack Value\n0001,Lucky 7s,20,300\n"
	res := validateSample(t, s, csv, Options{})

	out, err := s.Commit(context.Background(), CommitRequest{
		ValidationToken: res.ValidationToken,
		Options:         CommitOptions{SkipErrors: true},
	})
	if err != nil || !out.Success {
		t.Fatalf("Commit: %v %+v", err, out)
	}
	if len(repo.createdRows) != 1 {
		t.Fatalf("created = %v", repo.createdRows)
	}
	if got := repo.createdRows[0].TicketsPerPack; got != 15 {
		t.Errorf("persisted tickets_per_pack = %d, want 15 (300 / 20)", got)
	}
}
