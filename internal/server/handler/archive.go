package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/leagueauction/internal/domain"
)

// ArchiveReader reads archived auctions back from cold storage.
type ArchiveReader interface {
	Results(ctx context.Context, auctionID string) (domain.AuctionResults, error)
	Archived(ctx context.Context) ([]string, error)
}

// AuditReader lists audit entries of one auction.
type AuditReader interface {
	ListByAuction(ctx context.Context, auctionID string, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// ArchiveHandler serves the archive and audit trail endpoints.
type ArchiveHandler struct {
	archive ArchiveReader
	audit   AuditReader
	logger  *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler. Either source may be nil, in
// which case its endpoints answer 404.
func NewArchiveHandler(archive ArchiveReader, audit AuditReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archive: archive,
		audit:   audit,
		logger:  logHandler(logger, "archive"),
	}
}

// ListArchived returns the ids of archived auctions.
// GET /api/archive
func (h *ArchiveHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "archive is not configured")
		return
	}
	ids, err := h.archive.Archived(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "list archive", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"auction_ids": ids})
}

// GetArchivedResults returns the results stored in the archive.
// GET /api/archive/{id}
func (h *ArchiveHandler) GetArchivedResults(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusNotFound, "archive is not configured")
		return
	}
	res, err := h.archive.Results(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get archived results", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListAudit returns the audit trail of one auction, newest first.
// GET /api/auctions/{id}/audit?limit=50&offset=0
func (h *ArchiveHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if !requireOperator(w, r) {
		return
	}
	if h.audit == nil {
		writeError(w, http.StatusNotFound, "audit log is not configured")
		return
	}
	entries, err := h.audit.ListByAuction(r.Context(), pathParam(r, "id"), parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
