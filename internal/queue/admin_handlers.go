package queue

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/printstore/internal/common"
)

// AdminHandler exposes dead-letter inspection and replay for one queue kind.
type AdminHandler struct {
	DLQ      DLQ
	Kind     string
	PageSize int
	Logger   zerolog.Logger
}

// ListDLQ returns dead letters with pagination.
func (h *AdminHandler) ListDLQ(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r, h.pageSize())
	items, total, err := h.DLQ.List(r.Context(), h.Kind, offset, limit)
	if err != nil {
		h.Logger.Error().Err(err).Msg("queue: list dlq failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to list dead letters")
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"total": total,
		"kind":  h.Kind,
	})
}

// ReplayDLQ re-enqueues dead letters by id, or the oldest ones up to limit.
func (h *AdminHandler) ReplayDLQ(w http.ResponseWriter, r *http.Request) {
	var req replayRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload")
			return
		}
	}
	replayed, err := h.DLQ.Replay(r.Context(), h.Kind, uniqueStrings(req.IDs), req.Limit)
	resp := map[string]any{"replayed": replayed}
	if err != nil {
		h.Logger.Warn().Err(err).Int("replayed", len(replayed)).Msg("queue: partial dlq replay")
		resp["error"] = err.Error()
	}
	common.JSON(w, http.StatusOK, resp)
}

// Stats returns queue depth, processing and DLQ size.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.DLQ.Stats(r.Context(), h.Kind)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load queue stats")
		return
	}
	common.JSON(w, http.StatusOK, st)
}

func (h *AdminHandler) pageSize() int {
	if h.PageSize <= 0 {
		return 50
	}
	return h.PageSize
}

func parsePagination(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("offset")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return
}

func uniqueStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

type replayRequest struct {
	IDs   []string `json:"ids"`
	Limit int      `json:"limit"`
}
