package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"neurogallery/server/internal/config"
	"neurogallery/server/internal/interfaces"
)

// Registry looks up model metadata on a CivitAI-compatible registry by
// content hash.
type Registry struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewRegistry(cfg config.RegistryConfig) *Registry {
	return &Registry{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// registryVersion is the wire shape of a model-version lookup response.
type registryVersion struct {
	Name         string   `json:"name"`
	BaseModel    string   `json:"baseModel"`
	TrainedWords []string `json:"trainedWords"`
	Description  string   `json:"description"`
	Model        struct {
		Name string   `json:"name"`
		Type string   `json:"type"`
		Tags []string `json:"tags"`
	} `json:"model"`
	Images []struct {
		URL string `json:"url"`
	} `json:"images"`
}

// LookupByHash resolves a content digest to descriptive metadata. A 404 is
// reported as a nil result, not an error; callers fall back to filename
// defaults.
func (r *Registry) LookupByHash(ctx context.Context, digest string) (*interfaces.Enrichment, error) {
	url := fmt.Sprintf("%s/api/v1/model-versions/by-hash/%s", r.baseURL, digest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry lookup returned status %d", resp.StatusCode)
	}

	var version registryVersion
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}

	enrichment := &interfaces.Enrichment{
		CanonicalName: version.Model.Name,
		BaseFamily:    version.BaseModel,
		Description:   version.Description,
		TriggerWords:  version.TrainedWords,
		Tags:          version.Model.Tags,
	}
	if enrichment.CanonicalName == "" {
		enrichment.CanonicalName = version.Name
	}
	if len(version.Images) > 0 {
		enrichment.ThumbnailURL = version.Images[0].URL
	}

	// Carry the registry's type tag through for explicit mapping at the
	// import boundary.
	enrichment.SourceType = version.Model.Type

	return enrichment, nil
}

// Interface guard
var _ interfaces.ModelRegistry = (*Registry)(nil)
