package web

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"neurogallery/server/internal/cache"
	"neurogallery/server/internal/config"
	"neurogallery/server/internal/importer"
	"neurogallery/server/internal/interfaces"
	"neurogallery/server/internal/models"
	"neurogallery/server/internal/recipes"
	"neurogallery/server/internal/state"
)

// WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

type Handlers struct {
	config     *config.Config
	hub        *EventHub
	controller *state.Controller
	builder    *recipes.Builder
	session    *state.Session
	importer   *importer.Importer
	enricher   interfaces.Enricher
	cache      cache.Cache

	// recipeMu serializes whole form sequences on the shared builder. Each
	// Builder method locks on its own, but a save is a multi-step sequence
	// that must not interleave with another request's.
	recipeMu sync.Mutex
}

func NewHandlers(cfg *config.Config, hub *EventHub, controller *state.Controller, builder *recipes.Builder, session *state.Session, imp *importer.Importer, enricher interfaces.Enricher, cacheLayer cache.Cache) *Handlers {
	return &Handlers{
		config:     cfg,
		hub:        hub,
		controller: controller,
		builder:    builder,
		session:    session,
		importer:   imp,
		enricher:   enricher,
		cache:      cacheLayer,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "neurogallery",
		"loading": h.controller.Loading(),
	})
}

// ListModels returns the catalog, optionally narrowed by a name query, a
// conjunctive tag list and a type.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	var tags []string
	if raw := r.URL.Query().Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}

	ms := h.controller.FilterModels(query, tags)

	if rawType := r.URL.Query().Get("type"); rawType != "" {
		modelType, ok := models.ParseModelType(rawType)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown model type: "+rawType)
			return
		}
		var filtered []models.Model
		for _, m := range ms {
			if m.Type == modelType {
				filtered = append(filtered, m)
			}
		}
		ms = filtered
	}

	if ms == nil {
		ms = []models.Model{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (h *Handlers) GetModel(w http.ResponseWriter, r *http.Request) {
	m, ok := h.controller.ModelByID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// SaveModel creates or replaces a model. A missing id means create; the full
// record is the unit of persistence either way.
func (h *Handlers) SaveModel(w http.ResponseWriter, r *http.Request) {
	var m models.Model
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if m.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if _, ok := models.ParseModelType(string(m.Type)); !ok {
		writeError(w, http.StatusBadRequest, "unknown model type: "+string(m.Type))
		return
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Prompts == nil {
		m.Prompts = []models.PromptEntry{}
	}

	h.controller.UpsertModel(r.Context(), m)
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) DeleteModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted := h.controller.RemoveModel(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// AddPrompt appends an exhibited prompt to a model's gallery. The entry id
// and timestamp are assigned server-side.
func (h *Handlers) AddPrompt(w http.ResponseWriter, r *http.Request) {
	m, ok := h.controller.ModelByID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}

	var entry models.PromptEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if entry.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UnixMilli()

	m.AddPrompt(entry)
	h.controller.UpsertModel(r.Context(), m)
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) SelectModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.controller.ModelByID(id); !ok {
		writeError(w, http.StatusNotFound, "model not found")
		return
	}
	h.controller.SelectModel(id)
	writeJSON(w, http.StatusOK, map[string]string{"selected": id})
}

func (h *Handlers) GetSelectedModel(w http.ResponseWriter, r *http.Request) {
	m, ok := h.controller.SelectedModel()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handlers) ListTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.AllTags())
}

func (h *Handlers) ListCombinations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.controller.Combinations())
}

func (h *Handlers) GetCombination(w http.ResponseWriter, r *http.Request) {
	combo, ok := h.controller.CombinationByID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "combination not found")
		return
	}
	writeJSON(w, http.StatusOK, combo)
}

func (h *Handlers) DeleteCombination(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.builder.HandleDeleted(id)
	h.controller.RemoveCombination(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// recipeRequest is the recipe form as submitted. Weights for LoRAs that are
// not selected are ignored; trigger words arrive as one comma-delimited
// string, matching the form field.
type recipeRequest struct {
	EditingID     string                     `json:"editingId,omitempty"`
	Name          string                     `json:"name"`
	Description   string                     `json:"description"`
	CheckpointID  string                     `json:"checkpointId"`
	VAEID         string                     `json:"vaeId"`
	CLIPID        string                     `json:"clipId"`
	TextEncoderID string                     `json:"textEncoderId"`
	LoRAIDs       []string                   `json:"loraIds"`
	LoRAWeights   map[string]float64         `json:"loraWeights"`
	TriggerWords  string                     `json:"triggerWords"`
	Settings      *models.GenerationSettings `json:"settings"`
}

// SaveRecipe drives the composition builder with a submitted form and
// commits the resulting combination. Validation failures leave the catalog
// untouched.
func (h *Handlers) SaveRecipe(w http.ResponseWriter, r *http.Request) {
	var req recipeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.recipeMu.Lock()
	defer h.recipeMu.Unlock()

	b := h.builder
	b.Clear()
	if req.EditingID != "" {
		existing, ok := h.controller.CombinationByID(req.EditingID)
		if !ok {
			writeError(w, http.StatusNotFound, "combination not found")
			return
		}
		b.Load(existing)
		// Submitted selections replace the loaded ones wholesale.
		for _, id := range b.SelectedLoRAs() {
			b.ToggleLoRA(id)
		}
	}

	b.SetName(req.Name)
	b.SetDescription(req.Description)
	b.SetCheckpoint(req.CheckpointID)
	b.SetVAE(req.VAEID)
	b.SetCLIP(req.CLIPID)
	b.SetTextEncoder(req.TextEncoderID)
	b.SetTriggerWords(req.TriggerWords)
	if req.Settings != nil {
		b.SetSettings(*req.Settings)
	}

	for _, id := range req.LoRAIDs {
		b.ToggleLoRA(id)
		if weight, ok := req.LoRAWeights[id]; ok {
			b.SetLoRAWeight(id, strconv.FormatFloat(weight, 'f', -1, 64))
		}
	}

	combo, err := b.Save()
	if err != nil {
		if errors.Is(err, recipes.ErrIncomplete) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.controller.UpsertCombination(r.Context(), combo)
	writeJSON(w, http.StatusOK, combo)
}

// Session endpoints

func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	user := h.session.Load(r.Context())
	if user == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) PutSession(w http.ResponseWriter, r *http.Request) {
	var user interfaces.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.session.Set(r.Context(), &user); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store session")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Set(r.Context(), nil); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetEventStream upgrades the connection and attaches it to the hub. The
// client receives every subsequent state change, including persistence
// failures.
func (h *Handlers) GetEventStream(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Hub not initialized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &Client{
		ID:   generateClientID(),
		Conn: conn,
		Send: make(chan []byte, 256),
		Hub:  h.hub,
	}

	h.hub.register <- client

	welcome, _ := json.Marshal(map[string]interface{}{
		"type": "connected",
		"id":   client.ID,
		"time": time.Now().Unix(),
	})
	select {
	case client.Send <- welcome:
	default:
	}

	go client.readPump()
}

// generateClientID generates a unique client ID
func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))[:16]
	}
	return hex.EncodeToString(b)
}
