package state

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"neurogallery/server/internal/interfaces"
	"neurogallery/server/internal/models"
)

// PersistenceStore is the durable backend the controller mirrors.
type PersistenceStore interface {
	Initialize(ctx context.Context) (models.AppState, error)
	PutModel(ctx context.Context, m models.Model) error
	PutModels(ctx context.Context, ms []models.Model) error
	DeleteModel(ctx context.Context, id string) error
	PutCombination(ctx context.Context, c models.Combination) error
	DeleteCombination(ctx context.Context, id string) error
}

// PersistError reports a durable write that failed after the in-memory state
// already changed. The controller never rolls back; consumers that want
// stricter consistency can reconcile from here.
type PersistError struct {
	Op   string    `json:"op"`
	ID   string    `json:"id"`
	Err  error     `json:"-"`
	Time time.Time `json:"time"`
}

// Event describes an in-memory state change.
type Event struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Count int    `json:"count,omitempty"`
	Error string `json:"error,omitempty"`
}

const (
	EventModelSaved         = "model_saved"
	EventModelDeleted       = "model_deleted"
	EventCombinationSaved   = "combination_saved"
	EventCombinationDeleted = "combination_deleted"
	EventModelsImported     = "models_imported"
	EventPersistFailed      = "persist_failed"
)

// Controller owns the in-memory library state. All mutations go through it:
// the change is applied synchronously in memory, then written to the store on
// a goroutine. A failed write leaves the in-memory state as the visible
// truth and surfaces on Errors().
type Controller struct {
	store   PersistenceStore
	confirm interfaces.Confirmer

	mu           sync.RWMutex
	models       []models.Model
	combinations []models.Combination
	selectedID   string

	loading *atomic.Bool
	errs    chan PersistError

	listenerMu sync.Mutex
	listeners  []func(Event)

	wg sync.WaitGroup
}

// NewController builds a controller. It is constructed once at startup and
// passed explicitly to every consumer; there is no package-level instance.
func NewController(store PersistenceStore, confirm interfaces.Confirmer) *Controller {
	return &Controller{
		store:   store,
		confirm: confirm,
		loading: atomic.NewBool(true),
		errs:    make(chan PersistError, 64),
	}
}

// LoadInitial populates the in-memory collections from the store. The
// loading flag drops only after this completes, successfully or not.
func (c *Controller) LoadInitial(ctx context.Context) error {
	defer c.loading.Store(false)

	state, err := c.store.Initialize(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.models = state.Models
	c.combinations = state.Combinations
	c.mu.Unlock()
	return nil
}

// Loading reports whether the initial load is still in progress.
func (c *Controller) Loading() bool {
	return c.loading.Load()
}

// Errors exposes persistence failures. The channel is buffered; when nobody
// drains it, oldest failures are dropped with a log line.
func (c *Controller) Errors() <-chan PersistError {
	return c.errs
}

// OnEvent registers a listener invoked after each in-memory state change.
func (c *Controller) OnEvent(fn func(Event)) {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Flush waits for all outstanding durable writes. Used on shutdown and in
// tests.
func (c *Controller) Flush() {
	c.wg.Wait()
}

// Models returns a copy of the model collection.
func (c *Controller) Models() []models.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Model, len(c.models))
	copy(out, c.models)
	return out
}

// Combinations returns a copy of the combination collection.
func (c *Controller) Combinations() []models.Combination {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Combination, len(c.combinations))
	copy(out, c.combinations)
	return out
}

// ModelByID returns the model with the given id, if present.
func (c *Controller) ModelByID(id string) (models.Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, m := range c.models {
		if m.ID == id {
			return m, true
		}
	}
	return models.Model{}, false
}

// CombinationByID returns the combination with the given id, if present.
func (c *Controller) CombinationByID(id string) (models.Combination, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, combo := range c.combinations {
		if combo.ID == id {
			return combo, true
		}
	}
	return models.Combination{}, false
}

// SelectedModel returns the currently selected model, if any.
func (c *Controller) SelectedModel() (models.Model, bool) {
	c.mu.RLock()
	id := c.selectedID
	c.mu.RUnlock()

	if id == "" {
		return models.Model{}, false
	}
	return c.ModelByID(id)
}

// SelectModel marks a model as selected. An empty id clears the selection.
func (c *Controller) SelectModel(id string) {
	c.mu.Lock()
	c.selectedID = id
	c.mu.Unlock()
}

// UpsertModel replaces the model with the same id in place, or prepends a
// new one. The full record is persisted asynchronously either way.
func (c *Controller) UpsertModel(ctx context.Context, m models.Model) {
	c.mu.Lock()
	replaced := false
	for i := range c.models {
		if c.models[i].ID == m.ID {
			c.models[i] = m
			replaced = true
			break
		}
	}
	if !replaced {
		c.models = append([]models.Model{m}, c.models...)
	}
	c.selectedID = m.ID
	c.mu.Unlock()

	c.emit(Event{Type: EventModelSaved, ID: m.ID})
	c.persistAsync("put_model", m.ID, func(ctx context.Context) error {
		return c.store.PutModel(ctx, m)
	})
}

// RemoveModel deletes a model after an affirmative confirmation. Returns
// false when the confirmer declines. Combinations referencing the model are
// left untouched; their dangling references resolve to "Unknown" at display
// time.
func (c *Controller) RemoveModel(ctx context.Context, id string) bool {
	if !c.confirm.Confirm("Are you sure you want to delete this model? This action cannot be undone.") {
		return false
	}

	c.mu.Lock()
	kept := c.models[:0]
	for _, m := range c.models {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	c.models = kept
	if c.selectedID == id {
		c.selectedID = ""
	}
	c.mu.Unlock()

	c.emit(Event{Type: EventModelDeleted, ID: id})
	c.persistAsync("delete_model", id, func(ctx context.Context) error {
		return c.store.DeleteModel(ctx, id)
	})
	return true
}

// UpsertCombination replaces by id or appends, then persists asynchronously.
func (c *Controller) UpsertCombination(ctx context.Context, combo models.Combination) {
	c.mu.Lock()
	replaced := false
	for i := range c.combinations {
		if c.combinations[i].ID == combo.ID {
			c.combinations[i] = combo
			replaced = true
			break
		}
	}
	if !replaced {
		c.combinations = append(c.combinations, combo)
	}
	c.mu.Unlock()

	c.emit(Event{Type: EventCombinationSaved, ID: combo.ID})
	c.persistAsync("put_combination", combo.ID, func(ctx context.Context) error {
		return c.store.PutCombination(ctx, combo)
	})
}

// RemoveCombination deletes unconditionally. The asymmetry with model
// deletion (which requires confirmation) is intentional.
func (c *Controller) RemoveCombination(ctx context.Context, id string) {
	c.mu.Lock()
	kept := c.combinations[:0]
	for _, combo := range c.combinations {
		if combo.ID != id {
			kept = append(kept, combo)
		}
	}
	c.combinations = kept
	c.mu.Unlock()

	c.emit(Event{Type: EventCombinationDeleted, ID: id})
	c.persistAsync("delete_combination", id, func(ctx context.Context) error {
		return c.store.DeleteCombination(ctx, id)
	})
}

// BulkImportModels appends the given models and persists them as a single
// batch. Dedup happens upstream in the importer, not here.
func (c *Controller) BulkImportModels(ctx context.Context, ms []models.Model) {
	if len(ms) == 0 {
		return
	}

	c.mu.Lock()
	c.models = append(c.models, ms...)
	c.mu.Unlock()

	c.emit(Event{Type: EventModelsImported, Count: len(ms)})
	c.persistAsync("put_models", "", func(ctx context.Context) error {
		return c.store.PutModels(ctx, ms)
	})
}

// FilterModels returns models whose name contains the query
// (case-insensitive) and which carry every one of the selected tags.
func (c *Controller) FilterModels(query string, tags []string) []models.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))

	var out []models.Model
	for _, m := range c.models {
		if query != "" && !strings.Contains(strings.ToLower(m.Name), query) {
			continue
		}
		if !hasAllTags(m.Tags, tags) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ModelsByType returns all models of the given type, in collection order.
func (c *Controller) ModelsByType(t models.ModelType) []models.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.Model
	for _, m := range c.models {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

// AllTags returns the sorted set of distinct tags across the catalog.
func (c *Controller) AllTags() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, m := range c.models {
		for _, tag := range m.Tags {
			seen[tag] = struct{}{}
		}
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (c *Controller) emit(ev Event) {
	c.listenerMu.Lock()
	listeners := make([]func(Event), len(c.listeners))
	copy(listeners, c.listeners)
	c.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// persistAsync runs a durable write off the caller's goroutine. Writes are
// not serialized per id; each write is atomic for its own record only.
func (c *Controller) persistAsync(op, id string, fn func(ctx context.Context) error) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		if err := fn(context.Background()); err != nil {
			log.Printf("[State] %s failed for %q: %v", op, id, err)
			perr := PersistError{Op: op, ID: id, Err: err, Time: time.Now()}
			select {
			case c.errs <- perr:
			default:
				log.Printf("[State] Error channel full, dropping persist error for %q", id)
			}
			c.emit(Event{Type: EventPersistFailed, ID: id, Error: err.Error()})
		}
	}()
}
