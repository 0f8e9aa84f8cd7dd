package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"neurogallery/server/internal/cache"
	"neurogallery/server/internal/models"
)

// UI preferences and generation history live in the cache layer, not the
// persistent store: losing them is acceptable, losing the catalog is not.

const (
	preferencesKey = "ui"
	historyKey     = "recent"
	referenceKey   = "catalog"
	historyLimit   = 50
)

// referenceData is the static pick-list payload the UI renders selectors
// from.
type referenceData struct {
	Types    []models.ModelType        `json:"types"`
	Families []string                  `json:"families"`
	Samplers []string                  `json:"samplers"`
	Defaults models.GenerationSettings `json:"defaults"`
}

// GetPreferences returns the stored UI preferences blob, or an empty object
// when none was ever saved.
func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs json.RawMessage
	ok, err := h.cache.Get(r.Context(), cache.NamespaceSettings, preferencesKey, &prefs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read preferences")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(prefs)
}

// PutPreferences stores the UI preferences blob verbatim. Preferences never
// expire; they are replaced wholesale on each save.
func (h *Handlers) PutPreferences(w http.ResponseWriter, r *http.Request) {
	var prefs json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.cache.Set(r.Context(), cache.NamespaceSettings, preferencesKey, prefs, 0, ""); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store preferences")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"saved": true})
}

// GetReference serves the pick lists through the cache so repeated selector
// loads hit the TTL'd entry.
func (h *Handlers) GetReference(w http.ResponseWriter, r *http.Request) {
	var ref referenceData
	err := cache.GetOrFetch(r.Context(), h.cache, cache.NamespaceReference, referenceKey, h.config.Cache.DefaultTTL, &ref,
		func(ctx context.Context) (interface{}, error) {
			return referenceData{
				Types:    models.ModelTypes,
				Families: models.ModelFamilies,
				Samplers: models.Samplers,
				Defaults: models.DefaultSettings(),
			}, nil
		})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load reference data")
		return
	}
	writeJSON(w, http.StatusOK, ref)
}

// historyEntry is one remembered generation prompt.
type historyEntry struct {
	Prompt    string `json:"prompt"`
	ModelID   string `json:"modelId,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

// GetHistory returns the recent-prompt list. Expiry of the whole list is the
// cache's TTL doing its job; an absent entry is just an empty history.
func (h *Handlers) GetHistory(w http.ResponseWriter, r *http.Request) {
	var entries []historyEntry
	ok, err := h.cache.Get(r.Context(), cache.NamespaceHistory, historyKey, &entries)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if !ok {
		entries = []historyEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// AddHistory prepends a prompt to the recent list, truncating at the limit
// and refreshing the TTL.
func (h *Handlers) AddHistory(w http.ResponseWriter, r *http.Request) {
	var entry historyEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil || entry.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	entry.CreatedAt = time.Now().UnixMilli()

	var entries []historyEntry
	if _, err := h.cache.Get(r.Context(), cache.NamespaceHistory, historyKey, &entries); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	entries = append([]historyEntry{entry}, entries...)
	if len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}

	if err := h.cache.Set(r.Context(), cache.NamespaceHistory, historyKey, entries, h.config.Cache.DefaultTTL, ""); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ClearHistory drops the whole recent-prompt namespace.
func (h *Handlers) ClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context(), cache.NamespaceHistory); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
