package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"

	"neurogallery/server/internal/importer"
)

// maxUploadBytes bounds import uploads. Model files themselves are hashed,
// not stored, so the bound covers the largest checkpoint users upload.
const maxUploadBytes = 8 << 30

// ImportInvokeAI accepts an uploaded InvokeAI database export, scans it and
// imports every supported, non-duplicate model as one batch. The thumbnails
// query parameter selects the per-record enrichment: none, search or
// generate.
func (h *Handlers) ImportInvokeAI(w http.ResponseWriter, r *http.Request) {
	strategy := importer.ThumbnailStrategy(r.URL.Query().Get("thumbnails"))
	switch strategy {
	case "":
		strategy = importer.ThumbnailNone
	case importer.ThumbnailNone, importer.ThumbnailSearch, importer.ThumbnailGenerate:
	default:
		writeError(w, http.StatusBadRequest, "unknown thumbnail strategy")
		return
	}

	path, cleanup, err := saveUpload(r, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	result, err := h.importer.ImportFromExport(r.Context(), path, strategy)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "failed to read export: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// StageImport hashes an uploaded model file and stages it for confirmation.
// Nothing reaches the catalog until the staged record is confirmed.
func (h *Handlers) StageImport(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file upload is required")
		return
	}
	defer file.Close()

	blob, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	staged := h.importer.StageFile(r.Context(), header.Filename, blob)
	writeJSON(w, http.StatusOK, staged)
}

func (h *Handlers) GetStaged(w http.ResponseWriter, r *http.Request) {
	staged := h.importer.Staged()
	if staged == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, staged)
}

func (h *Handlers) ConfirmStaged(w http.ResponseWriter, r *http.Request) {
	m, err := h.importer.ConfirmStaged(r.Context())
	if err != nil {
		if errors.Is(err, importer.ErrNothingStaged) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) DiscardStaged(w http.ResponseWriter, r *http.Request) {
	h.importer.DiscardStaged()
	w.WriteHeader(http.StatusNoContent)
}

// DescribeModel fills in a model's description via the enrichment client and
// persists the updated record.
func (h *Handlers) DescribeModel(w http.ResponseWriter, r *http.Request) {
	if h.enricher == nil {
		writeError(w, http.StatusServiceUnavailable, "enrichment not configured")
		return
	}

	m, ok := h.controller.ModelByID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}

	description, err := h.enricher.GenerateDescription(
		r.Context(), m.Name, string(m.Type), strings.Join(m.TriggerWords, ", "))
	if err != nil {
		writeError(w, http.StatusBadGateway, "description generation failed")
		return
	}

	m.Description = description
	h.controller.UpsertModel(r.Context(), m)
	writeJSON(w, http.StatusOK, m)
}

// FindModelThumbnail looks up a preview image URL for a model and persists
// it. An empty lookup result leaves the record unchanged.
func (h *Handlers) FindModelThumbnail(w http.ResponseWriter, r *http.Request) {
	if h.enricher == nil {
		writeError(w, http.StatusServiceUnavailable, "enrichment not configured")
		return
	}

	m, ok := h.controller.ModelByID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}

	thumb, err := h.enricher.FindThumbnail(r.Context(), m.Name)
	if err != nil {
		writeError(w, http.StatusBadGateway, "thumbnail lookup failed")
		return
	}
	if thumb == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	m.ThumbnailURL = thumb
	h.controller.UpsertModel(r.Context(), m)
	writeJSON(w, http.StatusOK, m)
}

// EnhancePrompt rewrites a generation prompt. On enrichment failure the
// original prompt comes back unchanged, which is the designed degradation.
func (h *Handlers) EnhancePrompt(w http.ResponseWriter, r *http.Request) {
	if h.enricher == nil {
		writeError(w, http.StatusServiceUnavailable, "enrichment not configured")
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	improved, _ := h.enricher.EnhancePrompt(r.Context(), req.Prompt)
	if improved == "" {
		improved = req.Prompt
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": improved})
}

// saveUpload spools a multipart upload to a temp file so it can be opened by
// path. The caller owns cleanup.
func saveUpload(r *http.Request, field string) (string, func(), error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return "", nil, errors.New("file upload is required")
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "neurogallery-import-*.db")
	if err != nil {
		return "", nil, errors.New("failed to spool upload")
	}

	if _, err := io.Copy(tmp, io.LimitReader(file, maxUploadBytes)); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, errors.New("failed to spool upload")
	}
	tmp.Close()

	cleanup := func() { os.Remove(tmp.Name()) }
	return tmp.Name(), cleanup, nil
}
