package lotteryimport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/storelink/lotterysync/internal/audit"
	"github.com/storelink/lotterysync/internal/csvparse"
)

// ValidateRequest carries one uploaded file into the validation phase.
type ValidateRequest struct {
	FileData []byte
	StoreID  string
	UserID   string
	Options  Options
}

// ValidateResult is the validation outcome shown to the user as a preview.
// A token is present only when at least one row is valid.
type ValidateResult struct {
	Success         bool           `json:"success"`
	ValidationToken string         `json:"validationToken,omitempty"`
	ExpiresAt       *time.Time     `json:"expiresAt,omitempty"`
	Preview         Summary        `json:"preview"`
	Rows            []ValidatedRow `json:"rows,omitempty"`
	Warnings        []string       `json:"warnings,omitempty"`
	Errors          []string       `json:"errors,omitempty"`
}

// Validate runs the prepare phase: precondition checks, CSV parse, row
// validation, in-file and catalog duplicate detection, and pending-import
// persistence.
//
// Domain failures (bad store, bad file, zero valid rows) come back as
// Success=false with Errors populated and a nil error. A non-nil error
// means the repository itself failed.
func (s *Service) Validate(ctx context.Context, req ValidateRequest) (*ValidateResult, error) {
	// Preconditions, each short-circuiting before anything is persisted.
	info, err := s.repo.FindStore(ctx, req.StoreID)
	if err != nil {
		return nil, fmt.Errorf("find store: %w", err)
	}
	if info == nil {
		return &ValidateResult{Errors: []string{"store not found"}}, nil
	}
	if !info.Active {
		return &ValidateResult{Errors: []string{"store is inactive"}}, nil
	}
	if !info.LotteryEnabled {
		return &ValidateResult{Errors: []string{"store does not have lottery enabled"}}, nil
	}

	opts := csvparse.DefaultOptions()
	opts.RequiredHeaders = RequiredHeaders
	if s.cfg.MaxFileSize > 0 {
		opts.MaxFileSize = s.cfg.MaxFileSize
	}
	if s.cfg.MaxRows > 0 {
		opts.MaxRows = s.cfg.MaxRows
	}

	parsed, err := csvparse.Parse(req.FileData, opts)
	if err != nil {
		return &ValidateResult{Errors: []string{err.Error()}}, nil
	}

	existing, err := s.repo.ListActiveGames(ctx, req.StoreID)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	byCode := make(map[string]ExistingGame, len(existing))
	for _, g := range existing {
		byCode[g.GameCode] = g
	}

	result := &ValidateResult{Warnings: parsed.Warnings}
	rows := make([]ValidatedRow, 0, len(parsed.Rows))
	firstSeen := make(map[string]int, len(parsed.Rows))

	for _, pr := range parsed.Rows {
		data, errs := parseGameRow(pr.Data)
		vr := ValidatedRow{RowNumber: pr.RowNumber, Data: data}

		if len(errs) > 0 {
			vr.Status = StatusError
			vr.Errors = errs
			rows = append(rows, vr)
			continue
		}

		// In-file duplicate: first occurrence wins.
		if prev, seen := firstSeen[data.GameCode]; seen {
			vr.Status = StatusError
			vr.Errors = []string{fmt.Sprintf("duplicate game_code %s, already used on row %d", data.GameCode, prev)}
			rows = append(rows, vr)
			continue
		}
		firstSeen[data.GameCode] = pr.RowNumber

		if g, found := byCode[data.GameCode]; found {
			snapshot := g
			vr.Existing = &snapshot
			if req.Options.UpdateExisting {
				vr.Status = StatusValid
				vr.Action = ActionUpdate
			} else {
				vr.Status = StatusDuplicate
				vr.Action = ActionSkip
			}
		} else {
			vr.Status = StatusValid
			vr.Action = ActionCreate
		}
		rows = append(rows, vr)
	}

	result.Rows = rows
	result.Preview = summarize(rows)

	if result.Preview.ValidRows == 0 {
		result.Errors = append(result.Errors, "no valid rows to import")
		return result, nil
	}

	now := s.now()
	imp := &PendingImport{
		ID:        uuid.New().String(),
		StoreID:   req.StoreID,
		CreatedBy: req.UserID,
		Rows:      rows,
		Options:   req.Options,
		Summary:   result.Preview,
		Token:     uuid.New().String(),
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	}
	if err := s.repo.CreatePendingImport(ctx, imp); err != nil {
		return nil, fmt.Errorf("create pending import: %w", err)
	}

	result.Success = true
	result.ValidationToken = imp.Token
	result.ExpiresAt = &imp.ExpiresAt

	s.writeAudit(ctx, audit.Entry{
		Action:   audit.ActionImportValidated,
		StoreID:  req.StoreID,
		ObjectID: imp.ID,
		UserID:   req.UserID,
		Detail: map[string]any{
			"total_rows":     result.Preview.TotalRows,
			"valid_rows":     result.Preview.ValidRows,
			"error_rows":     result.Preview.ErrorRows,
			"duplicate_rows": result.Preview.DuplicateRows,
		},
	})

	return result, nil
}

func summarize(rows []ValidatedRow) Summary {
	sum := Summary{TotalRows: len(rows)}
	for _, r := range rows {
		switch r.Status {
		case StatusValid:
			sum.ValidRows++
		case StatusError:
			sum.ErrorRows++
		case StatusDuplicate:
			sum.DuplicateRows++
		}
	}
	return sum
}
