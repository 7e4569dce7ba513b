package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storelink/lotterysync/internal/logging"
	"github.com/storelink/lotterysync/internal/store"
)

// handleActivatePack activates a pack: generates its ticket UPCs, caches
// them, exports the price book to the store's POS, and records the new
// lifecycle state.
//
// POST /api/packs/{packID}/activate
func (s *Server) handleActivatePack(w http.ResponseWriter, r *http.Request) {
	packID := chi.URLParam(r, "packID")
	logger := logging.WithFields(r.Context(), "pack_id", packID)

	pack, err := s.packs.FindPack(r.Context(), packID)
	if err != nil {
		logger.Error("pack lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "pack lookup failed")
		return
	}
	if pack == nil {
		writeError(w, http.StatusNotFound, "pack not found")
		return
	}

	result := s.syncer.SyncPackActivation(r.Context(), *pack)
	if !result.Success {
		writeJSON(w, http.StatusUnprocessableEntity, result)
		return
	}

	if err := s.packs.UpdatePackStatus(r.Context(), packID, store.PackStatusActive); err != nil {
		logger.Error("pack status update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "pack status update failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleDeactivatePack deactivates a pack: drops its cached UPCs and
// exports a price-book delete to the store's POS. Deactivation sync is
// best-effort end to end, so only the status update can fail the request.
//
// POST /api/packs/{packID}/deactivate
func (s *Server) handleDeactivatePack(w http.ResponseWriter, r *http.Request) {
	packID := chi.URLParam(r, "packID")
	logger := logging.WithFields(r.Context(), "pack_id", packID)

	pack, err := s.packs.FindPack(r.Context(), packID)
	if err != nil {
		logger.Error("pack lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "pack lookup failed")
		return
	}
	if pack == nil {
		writeError(w, http.StatusNotFound, "pack not found")
		return
	}

	result := s.syncer.SyncPackDeactivation(r.Context(), *pack)

	if err := s.packs.UpdatePackStatus(r.Context(), packID, store.PackStatusDeactivated); err != nil {
		logger.Error("pack status update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "pack status update failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
