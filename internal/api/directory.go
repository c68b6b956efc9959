package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/farsight-labs/farsight-core/internal/device"
)

// Directory handlers expose the persisted device directory: every
// identity that has ever registered, with first/last seen bookkeeping.
// These routes are only mounted when the directory is enabled.

// handleListDirectory returns all directory records, most recently
// connected first.
func (s *Server) handleListDirectory(w http.ResponseWriter, r *http.Request) {
	records, err := s.directory.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list directory records", "error", err)
		writeInternalError(w, "failed to list directory records")
		return
	}

	if records == nil {
		records = []device.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": records,
		"count":   len(records),
	})
}

// handleGetDirectoryRecord returns one directory record by device ID.
func (s *Server) handleGetDirectoryRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := s.directory.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrRecordNotFound) {
			writeNotFound(w, "no directory record for device: "+id)
			return
		}
		s.logger.Error("failed to get directory record", "device_id", id, "error", err)
		writeInternalError(w, "failed to get directory record")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleDeleteDirectoryRecord removes a directory record. A live session
// for the same identity is untouched; reconnecting recreates the record.
func (s *Server) handleDeleteDirectoryRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.directory.Delete(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrRecordNotFound) {
			writeNotFound(w, "no directory record for device: "+id)
			return
		}
		s.logger.Error("failed to delete directory record", "device_id", id, "error", err)
		writeInternalError(w, "failed to delete directory record")
		return
	}

	s.logger.Info("directory record deleted", "device_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "device_id": id})
}
