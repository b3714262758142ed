// Package registry resolves downstream generation models to providers and
// invocation parameter bags. Entries come from configuration on top of
// built-in defaults; lookups are memoized per (model, generation type) since
// inputs are immutable per key.
package registry

import (
	"context"
	"encoding/json"
	"time"

	cachepkg "github.com/atelier-ai/atelier/pkg/cache/sqlite"
	"github.com/atelier-ai/atelier/pkg/config"
	"github.com/atelier-ai/atelier/pkg/models"
)

// Registry answers ParamsFor and Provider lookups.
type Registry struct {
	entries map[string]config.ModelEntry
	cache   *cachepkg.Cache
	ttl     time.Duration
}

// New builds a Registry from configuration. Config entries extend the
// built-in defaults; the cache may be nil to disable memoization.
func New(cfg config.RegistryConfig, cache *cachepkg.Cache, ttl time.Duration) *Registry {
	entries := make(map[string]config.ModelEntry)
	for _, e := range builtinEntries() {
		entries[e.Name] = e
	}
	for _, e := range cfg.Models {
		if prev, ok := entries[e.Name]; ok {
			e = mergeEntries(prev, e)
		}
		entries[e.Name] = e
	}
	return &Registry{entries: entries, cache: cache, ttl: ttl}
}

// Provider returns the provider name for a model, or "" if unknown.
func (r *Registry) Provider(model string) string {
	return r.entries[model].Provider
}

// ParamsFor returns the parameter bag for invoking a model with a given
// generation type. The second result reports whether the bag came from
// cache. Unknown models get the built-in per-type defaults.
func (r *Registry) ParamsFor(ctx context.Context, model string, genType models.GenerationType) (models.ParameterBag, bool) {
	if r.cache == nil {
		return r.compute(model, genType), false
	}

	key := cachepkg.Key(model, string(genType))
	data, hit, err := r.cache.GetOrCompute(ctx, cachepkg.NamespaceParams, key, r.ttl, func() ([]byte, error) {
		return json.Marshal(r.compute(model, genType))
	})
	if err != nil {
		return r.compute(model, genType), false
	}

	var bag models.ParameterBag
	if err := json.Unmarshal(data, &bag); err != nil {
		return r.compute(model, genType), false
	}
	return bag, hit
}

func (r *Registry) compute(model string, genType models.GenerationType) models.ParameterBag {
	bag := typeDefaults(genType).Clone()
	entry, ok := r.entries[model]
	if !ok {
		return bag
	}
	for k, v := range entry.Defaults {
		bag[k] = v
	}
	for k, v := range entry.PerType[genType] {
		bag[k] = v
	}
	return bag
}

func mergeEntries(base, override config.ModelEntry) config.ModelEntry {
	if override.Provider == "" {
		override.Provider = base.Provider
	}
	merged := base.Defaults.Clone()
	if merged == nil {
		merged = models.ParameterBag{}
	}
	for k, v := range override.Defaults {
		merged[k] = v
	}
	override.Defaults = merged

	perType := make(map[models.GenerationType]models.ParameterBag, len(base.PerType))
	for t, bag := range base.PerType {
		perType[t] = bag.Clone()
	}
	for t, bag := range override.PerType {
		dst := perType[t]
		if dst == nil {
			dst = models.ParameterBag{}
		}
		for k, v := range bag {
			dst[k] = v
		}
		perType[t] = dst
	}
	override.PerType = perType
	return override
}

// typeDefaults returns baseline parameters per generation type.
func typeDefaults(genType models.GenerationType) models.ParameterBag {
	switch genType {
	case models.NewImage:
		return models.ParameterBag{"width": 1024, "height": 1024, "num_images": 1, "output_format": "png"}
	case models.NewImageRef:
		return models.ParameterBag{"width": 1024, "height": 1024, "num_images": 1, "output_format": "png", "reference_weight": 0.85}
	case models.EditImage:
		return models.ParameterBag{"output_format": "png", "preserve_source": true}
	case models.EditImageRef, models.EditImageAddNew:
		return models.ParameterBag{"output_format": "png", "preserve_source": true, "reference_weight": 0.85}
	case models.NewVideo, models.ImageToVideo:
		return models.ParameterBag{"duration_seconds": 5, "fps": 24, "resolution": "720p"}
	case models.NewVideoWithAudio, models.ImageToVideoWithAudio:
		return models.ParameterBag{"duration_seconds": 8, "fps": 24, "resolution": "720p", "generate_audio": true}
	case models.EditImageRefToVideo:
		return models.ParameterBag{"duration_seconds": 5, "fps": 24, "resolution": "720p", "reference_weight": 0.85}
	}
	return models.ParameterBag{}
}

// builtinEntries covers the stock model set so the engine works with an
// empty registry section.
func builtinEntries() []config.ModelEntry {
	return []config.ModelEntry{
		{Name: "imagen-4", Provider: "google"},
		{Name: "nano-banana", Provider: "google"},
		{Name: "veo-3", Provider: "google"},
		{Name: "kling-v2.1", Provider: "kling"},
	}
}
