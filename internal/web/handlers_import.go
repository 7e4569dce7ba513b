package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/storelink/lotterysync/internal/logging"
	"github.com/storelink/lotterysync/internal/lotteryimport"
)

// maxUploadBytes caps the multipart body before the CSV parser applies
// its own file-size limit. Slightly above the parser's limit so the
// parser gets to report the friendlier over-size error.
const maxUploadBytes = 8 << 20

// handleValidateImport runs phase one of the import: parse, validate,
// and stage a pending import behind a validation token.
//
// POST /api/imports/validate
// multipart form: file, store_id, user_id, update_existing
func (s *Server) handleValidateImport(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	storeID := r.FormValue("store_id")
	if storeID == "" {
		writeError(w, http.StatusBadRequest, "store_id is required")
		return
	}

	req := lotteryimport.ValidateRequest{
		FileData: data,
		StoreID:  storeID,
		UserID:   r.FormValue("user_id"),
		Options: lotteryimport.Options{
			UpdateExisting: r.FormValue("update_existing") == "true",
		},
	}

	res, err := s.imports.Validate(r.Context(), req)
	if err != nil {
		logger.Error("import validation failed", "store_id", storeID, "error", err)
		writeError(w, http.StatusInternalServerError, "validation failed")
		return
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

type commitRequest struct {
	ValidationToken string                      `json:"validationToken"`
	UserID          string                      `json:"userId"`
	Options         lotteryimport.CommitOptions `json:"options"`
}

// handleCommitImport runs phase two: redeem the validation token and
// apply the staged rows atomically.
//
// POST /api/imports/commit
func (s *Server) handleCommitImport(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context())

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ValidationToken == "" {
		writeError(w, http.StatusBadRequest, "validationToken is required")
		return
	}

	res, err := s.imports.Commit(r.Context(), lotteryimport.CommitRequest{
		ValidationToken: req.ValidationToken,
		UserID:          req.UserID,
		Options:         req.Options,
	})
	if err != nil {
		switch {
		case errors.Is(err, lotteryimport.ErrTokenNotFound):
			writeError(w, http.StatusNotFound, "validation token not found")
		case errors.Is(err, lotteryimport.ErrAlreadyCommitted):
			writeError(w, http.StatusConflict, "import already committed")
		case errors.Is(err, lotteryimport.ErrExpiredToken):
			writeError(w, http.StatusGone, "validation token expired")
		case errors.Is(err, lotteryimport.ErrErrorRowsPresent):
			writeError(w, http.StatusUnprocessableEntity, "import contains error rows; retry with skip_errors")
		default:
			logger.Error("import commit failed", "error", err)
			writeError(w, http.StatusInternalServerError, "commit failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}
