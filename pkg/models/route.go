package models

// GenerationType identifies what kind of output a request asks for and
// from what starting materials. The set is closed: classifiers must never
// produce a value outside it.
type GenerationType string

const (
	NewImage              GenerationType = "NEW_IMAGE"
	NewImageRef           GenerationType = "NEW_IMAGE_REF"
	EditImage             GenerationType = "EDIT_IMAGE"
	EditImageRef          GenerationType = "EDIT_IMAGE_REF"
	EditImageAddNew       GenerationType = "EDIT_IMAGE_ADD_NEW"
	NewVideo              GenerationType = "NEW_VIDEO"
	NewVideoWithAudio     GenerationType = "NEW_VIDEO_WITH_AUDIO"
	ImageToVideo          GenerationType = "IMAGE_TO_VIDEO"
	ImageToVideoWithAudio GenerationType = "IMAGE_TO_VIDEO_WITH_AUDIO"
	EditImageRefToVideo   GenerationType = "EDIT_IMAGE_REF_TO_VIDEO"
)

// AllGenerationTypes lists every member of the closed enum.
var AllGenerationTypes = []GenerationType{
	NewImage, NewImageRef, EditImage, EditImageRef, EditImageAddNew,
	NewVideo, NewVideoWithAudio, ImageToVideo, ImageToVideoWithAudio,
	EditImageRefToVideo,
}

// Valid reports whether g is a member of the closed enum.
func (g GenerationType) Valid() bool {
	for _, t := range AllGenerationTypes {
		if g == t {
			return true
		}
	}
	return false
}

// IsVideo reports whether g produces video output.
func (g GenerationType) IsVideo() bool {
	switch g {
	case NewVideo, NewVideoWithAudio, ImageToVideo, ImageToVideoWithAudio, EditImageRefToVideo:
		return true
	}
	return false
}

// NeedsActiveImage reports whether g only makes sense when the user has an
// image open in the canvas.
func (g GenerationType) NeedsActiveImage() bool {
	switch g {
	case EditImage, EditImageAddNew, ImageToVideo, ImageToVideoWithAudio:
		return true
	}
	return false
}

// NeedsReference reports whether g only makes sense with at least one
// uploaded or named reference image.
func (g GenerationType) NeedsReference() bool {
	switch g {
	case NewImageRef, EditImageRef, EditImageAddNew, EditImageRefToVideo:
		return true
	}
	return false
}

// RouteMethod records which path produced a routing decision.
type RouteMethod string

const (
	// MethodLLM means the remote classifier's answer was used as-is.
	MethodLLM RouteMethod = "LLM"
	// MethodRule means the deterministic rule table produced the answer.
	MethodRule RouteMethod = "RULE"
	// MethodCorrected means the LLM answered but the rule table overrode a
	// structurally impossible generation type.
	MethodCorrected RouteMethod = "CORRECTED"
)

// ModelRoute is a fully resolved routing decision. Instances are immutable
// after creation; reclassification produces a new value.
type ModelRoute struct {
	GenerationType GenerationType `json:"generation_type"`
	Model          string         `json:"model"`
	Provider       string         `json:"provider"`
	EnhancedPrompt string         `json:"enhanced_prompt"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning"`
	Method         RouteMethod    `json:"method"`
}

// RouteResult is what the engine hands back to callers: the route itself
// plus the resolved parameter bag and per-request metadata.
type RouteResult struct {
	RequestID      string              `json:"request_id"`
	SessionID      string              `json:"session_id,omitempty"`
	Route          ModelRoute          `json:"route"`
	Params         ParameterBag        `json:"params"`
	References     []ResolvedReference `json:"references,omitempty"`
	CacheHit       bool                `json:"cache_hit"`
	ParamsCacheHit bool                `json:"params_cache_hit"`
	BreakerState   string              `json:"breaker_state"`
	LatencyMs      int64               `json:"latency_ms"`
}
