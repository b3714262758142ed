// Package refs derives classification flags from a request: which @tag
// mentions resolve to known reference images, what was uploaded, and how
// many distinct references the generator will receive.
package refs

import (
	"context"
	"log"
	"regexp"

	"github.com/atelier-ai/atelier/pkg/models"
)

// Store looks up named references for a user. It is an external
// collaborator; the resolver only reads from it.
type Store interface {
	Resolve(ctx context.Context, userID string, tags []string) ([]models.ResolvedReference, error)
}

var mentionRe = regexp.MustCompile(`@([A-Za-z0-9_-]+)`)

// Resolver parses mentions and upload metadata into ClassificationFlags.
type Resolver struct {
	store Store
}

// New creates a Resolver backed by the given reference store. A nil store
// means no named references ever resolve.
func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Tags returns the distinct @tag mentions in a prompt, in order of first
// appearance.
func Tags(prompt string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, m := range mentionRe.FindAllStringSubmatch(prompt, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			tags = append(tags, m[1])
		}
	}
	return tags
}

// Resolve derives the request's flags and resolved references. Mentions that
// match nothing in the store stay verbatim in the prompt and are simply not
// counted; a store outage is treated the same way. An uploaded image that is
// also a named reference counts once.
func (r *Resolver) Resolve(ctx context.Context, req models.RouteRequest) (models.ClassificationFlags, []models.ResolvedReference) {
	flags := models.ClassificationFlags{
		HasActiveImage:   req.HasActiveImage,
		HasUploadedImage: len(req.UploadedImages) > 0,
	}

	var resolved []models.ResolvedReference
	if tags := Tags(req.Prompt); len(tags) > 0 && r.store != nil {
		var err error
		resolved, err = r.store.Resolve(ctx, req.UserID, tags)
		if err != nil {
			log.Printf("reference store lookup failed, mentions left unresolved: %v", err)
			resolved = nil
		}
	}
	flags.HasNamedReference = len(resolved) > 0

	urls := make(map[string]bool)
	for _, ref := range resolved {
		urls[ref.ImageURL] = true
	}
	count := len(urls)
	for _, u := range req.UploadedImages {
		if !urls[u] {
			urls[u] = true
			count++
		}
	}
	flags.ReferenceCount = count

	return flags, resolved
}
