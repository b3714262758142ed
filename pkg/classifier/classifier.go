// Package classifier routes a prompt to a generation type and model using a
// remote LLM, guarded by a circuit breaker and rate limiter, with the rule
// table as a total fallback. Classify never returns an error: every failure
// on the LLM path converts into a rule-based answer carrying the reason.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/atelier-ai/atelier/pkg/breaker"
	cachepkg "github.com/atelier-ai/atelier/pkg/cache/sqlite"
	"github.com/atelier-ai/atelier/pkg/models"
	"github.com/atelier-ai/atelier/pkg/ratelimit"
	"github.com/atelier-ai/atelier/pkg/rules"
)

// ErrMalformedClassification marks an LLM response that failed schema
// validation.
var ErrMalformedClassification = errors.New("malformed classification response")

// llmCallCost is the cost consumed from rate-limit budgets per remote call,
// in the same units the limit policies are configured in.
const llmCallCost = 10

// Classifier is the resilient classification pipeline.
type Classifier struct {
	client   Client
	brk      *breaker.Breaker
	cache    *cachepkg.Cache
	limiter  *ratelimit.Limiter
	table    *rules.Table
	cacheTTL time.Duration
}

// Options carries the optional collaborators. Nil cache disables caching,
// nil limiter disables quota checks.
type Options struct {
	Cache    *cachepkg.Cache
	CacheTTL time.Duration
	Limiter  *ratelimit.Limiter
}

// New creates a Classifier. The breaker guards every remote call; the rule
// table doubles as fallback and as the sanity reference for LLM answers.
func New(client Client, brk *breaker.Breaker, table *rules.Table, opts Options) *Classifier {
	return &Classifier{
		client:   client,
		brk:      brk,
		cache:    opts.Cache,
		limiter:  opts.Limiter,
		table:    table,
		cacheTTL: opts.CacheTTL,
	}
}

// Classify produces a ModelRoute for the prompt. The bool reports a
// classification cache hit. Order matters: cache first (hits must not
// consume quota), then the rate limiter, then the breaker-guarded remote
// call. Rule-based fallbacks are not cached so the LLM path is retried once
// it recovers.
func (c *Classifier) Classify(ctx context.Context, prompt string, flags models.ClassificationFlags, userID, apiKey string) (models.ModelRoute, bool) {
	key := cachepkg.Key(prompt, flagsKey(flags))

	if c.cache != nil {
		if data, ok := c.cache.Get(ctx, cachepkg.NamespaceClassification, key); ok {
			var route models.ModelRoute
			if err := json.Unmarshal(data, &route); err == nil {
				return route, true
			}
		}
	}

	if c.limiter != nil {
		scopes := map[models.LimitScope]string{
			models.ScopeGlobal:   "global",
			models.ScopeEndpoint: "classify",
		}
		if userID != "" {
			scopes[models.ScopeUser] = userID
		}
		if apiKey != "" {
			scopes[models.ScopeAPIKey] = apiKey
		}
		if d := c.limiter.CheckAndConsume(ctx, scopes, llmCallCost); !d.Allowed {
			reason := fmt.Sprintf("llm quota exhausted for scope %s, retry in %s; classified by rules",
				d.Scope, d.RetryAfter.Round(time.Second))
			return c.fallback(ctx, prompt, flags, reason), false
		}
	}

	raw, err := breaker.Do(c.brk, func() (string, error) {
		return c.client.Complete(ctx, buildPrompt(prompt, flags))
	})
	if err != nil {
		var open *breaker.CircuitOpenError
		if errors.As(err, &open) {
			return c.fallback(ctx, prompt, flags, "classifier circuit open: "+open.Error()), false
		}
		return c.fallback(ctx, prompt, flags, "classifier call failed: "+err.Error()), false
	}

	route, err := c.parse(raw, prompt, flags)
	if err != nil {
		log.Printf("classification parse failed: %v", err)
		return c.fallback(ctx, prompt, flags, "classifier response invalid: "+err.Error()), false
	}

	if c.cache != nil {
		if data, err := json.Marshal(route); err == nil {
			_ = c.cache.Set(ctx, cachepkg.NamespaceClassification, key, data, c.cacheTTL)
		}
	}
	return route, false
}

// fallback builds the rule-based route, memoizing the deterministic prompt
// enhancement per (prompt, type).
func (c *Classifier) fallback(ctx context.Context, prompt string, flags models.ClassificationFlags, reason string) models.ModelRoute {
	route := c.table.Fallback(prompt, flags, reason)
	route.EnhancedPrompt = c.enhance(ctx, prompt, route.GenerationType)
	return route
}

func (c *Classifier) enhance(ctx context.Context, prompt string, genType models.GenerationType) string {
	if c.cache == nil {
		return rules.Enhance(prompt, genType)
	}
	key := cachepkg.Key(prompt, string(genType))
	data, _, err := c.cache.GetOrCompute(ctx, cachepkg.NamespaceEnhancement, key, c.cacheTTL, func() ([]byte, error) {
		return []byte(rules.Enhance(prompt, genType)), nil
	})
	if err != nil || len(data) == 0 {
		return rules.Enhance(prompt, genType)
	}
	return string(data)
}

// payload is the structured answer expected from the LLM.
type payload struct {
	GenerationType string  `json:"generation_type"`
	Model          string  `json:"model"`
	EnhancedPrompt string  `json:"enhanced_prompt"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning"`
}

// parse validates the raw LLM answer and corrects structurally impossible
// generation types using the rule table.
func (c *Classifier) parse(raw, prompt string, flags models.ClassificationFlags) (models.ModelRoute, error) {
	var p payload
	if err := json.Unmarshal([]byte(stripFences(raw)), &p); err != nil {
		return models.ModelRoute{}, fmt.Errorf("%w: %v", ErrMalformedClassification, err)
	}

	genType := models.GenerationType(strings.ToUpper(strings.TrimSpace(p.GenerationType)))
	if !genType.Valid() {
		return models.ModelRoute{}, fmt.Errorf("%w: unknown generation type %q", ErrMalformedClassification, p.GenerationType)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return models.ModelRoute{}, fmt.Errorf("%w: confidence %v out of range", ErrMalformedClassification, p.Confidence)
	}

	if !rules.Plausible(genType, flags) {
		ruleType, ruleModel := c.table.Classify(flags, rules.DetectIntent(prompt))
		return models.ModelRoute{
			GenerationType: ruleType,
			Model:          ruleModel,
			EnhancedPrompt: rules.Enhance(prompt, ruleType),
			Confidence:     p.Confidence,
			Reasoning: fmt.Sprintf("llm proposed %s, impossible for the request's source material; corrected to %s",
				genType, ruleType),
			Method: models.MethodCorrected,
		}, nil
	}

	model := strings.TrimSpace(p.Model)
	if model == "" {
		model = c.table.ModelFor(genType)
	}
	enhanced := strings.TrimSpace(p.EnhancedPrompt)
	if enhanced == "" {
		enhanced = rules.Enhance(prompt, genType)
	}

	return models.ModelRoute{
		GenerationType: genType,
		Model:          model,
		EnhancedPrompt: enhanced,
		Confidence:     p.Confidence,
		Reasoning:      p.Reasoning,
		Method:         models.MethodLLM,
	}, nil
}

// stripFences removes a markdown code fence around a JSON answer, a common
// LLM tic.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func flagsKey(f models.ClassificationFlags) string {
	return fmt.Sprintf("%t|%t|%t|%d", f.HasActiveImage, f.HasUploadedImage, f.HasNamedReference, f.ReferenceCount)
}

const promptTemplate = `Classify a creative generation request. Return ONLY a JSON object:
{"generation_type": "...", "model": "...", "enhanced_prompt": "...", "confidence": 0.0-1.0, "reasoning": "..."}

generation_type must be one of:
NEW_IMAGE, NEW_IMAGE_REF, EDIT_IMAGE, EDIT_IMAGE_REF, EDIT_IMAGE_ADD_NEW,
NEW_VIDEO, NEW_VIDEO_WITH_AUDIO, IMAGE_TO_VIDEO, IMAGE_TO_VIDEO_WITH_AUDIO,
EDIT_IMAGE_REF_TO_VIDEO

Available source material:
- active image on canvas: %t
- uploaded images: %t
- named references (@mentions): %t
- total reference count: %d

Request: %s

Respond with ONLY the JSON object, no other text.`

func buildPrompt(prompt string, flags models.ClassificationFlags) string {
	return fmt.Sprintf(promptTemplate,
		flags.HasActiveImage, flags.HasUploadedImage, flags.HasNamedReference, flags.ReferenceCount, prompt)
}
