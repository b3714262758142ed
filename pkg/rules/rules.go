// Package rules implements the deterministic fallback classifier: a total
// function from classification flags and prompt intent to a generation type
// and downstream model. It is the path of last resort when the LLM
// classifier is unavailable, and the sanity reference the LLM's answers are
// validated against.
package rules

import (
	"github.com/atelier-ai/atelier/pkg/models"
)

// ModelSet names the default model per routing family.
type ModelSet struct {
	BaseImage  string // text-to-image, no source material
	RefImage   string // reference-routed image model
	EditImage  string // image editing model
	Video      string // silent video model, also reference-routed for video
	AudioVideo string // video model with native audio
}

// DefaultModels returns the stock model assignment.
func DefaultModels() ModelSet {
	return ModelSet{
		BaseImage:  "imagen-4",
		RefImage:   "nano-banana",
		EditImage:  "nano-banana",
		Video:      "kling-v2.1",
		AudioVideo: "veo-3",
	}
}

// Table is the rule-based classifier. It has no state beyond its model
// assignment and never fails.
type Table struct {
	models ModelSet
}

// New returns a Table using the default model set.
func New() *Table {
	return &Table{models: DefaultModels()}
}

// NewWithModels returns a Table with a custom model assignment.
func NewWithModels(ms ModelSet) *Table {
	return &Table{models: ms}
}

// Classify maps flags and intent to a generation type and model. Decision
// order is part of the contract:
//
//  1. Two or more references force the reference-routed model (video model
//     when video intent is present, image model otherwise).
//  2. Otherwise the cross of image state × video intent × audio intent
//     selects one cell of a fixed grid.
//
// Audio intent implies motion: audio only exists in video output, so a
// prompt asking for sound routes to a video-with-audio type even without an
// explicit video word. Unrecognized combinations fall through to NEW_IMAGE
// on the base model.
func (t *Table) Classify(flags models.ClassificationFlags, intent Intent) (models.GenerationType, string) {
	wantsVideo := intent.Video || intent.Audio
	wantsAudio := intent.Audio

	// Multi-reference override.
	if flags.ReferenceCount >= 2 {
		if wantsVideo {
			return models.EditImageRefToVideo, t.models.Video
		}
		return models.NewImageRef, t.models.RefImage
	}

	hasReference := flags.HasUploadedImage || flags.HasNamedReference

	switch {
	case hasReference:
		switch {
		case wantsVideo:
			return models.EditImageRefToVideo, t.models.Video
		case flags.HasActiveImage && flags.HasUploadedImage:
			return models.EditImageAddNew, t.models.EditImage
		case flags.HasActiveImage:
			return models.EditImageRef, t.models.EditImage
		default:
			return models.NewImageRef, t.models.RefImage
		}

	case flags.HasActiveImage:
		switch {
		case wantsAudio:
			return models.ImageToVideoWithAudio, t.models.AudioVideo
		case wantsVideo:
			return models.ImageToVideo, t.models.Video
		default:
			return models.EditImage, t.models.EditImage
		}

	default:
		switch {
		case wantsAudio:
			return models.NewVideoWithAudio, t.models.AudioVideo
		case wantsVideo:
			return models.NewVideo, t.models.Video
		}
	}

	return models.NewImage, t.models.BaseImage
}

// ModelFor returns the default model for a generation type, independent of
// flags. Used to fill in a model when the LLM names a type but no model.
func (t *Table) ModelFor(genType models.GenerationType) string {
	switch genType {
	case models.NewImage:
		return t.models.BaseImage
	case models.NewImageRef:
		return t.models.RefImage
	case models.EditImage, models.EditImageRef, models.EditImageAddNew:
		return t.models.EditImage
	case models.NewVideo, models.ImageToVideo, models.EditImageRefToVideo:
		return t.models.Video
	case models.NewVideoWithAudio, models.ImageToVideoWithAudio:
		return t.models.AudioVideo
	}
	return t.models.BaseImage
}

// Fallback produces a complete rule-based ModelRoute for a prompt, with the
// reason the deterministic path was taken. Used whenever the LLM path is
// unavailable or denied.
func (t *Table) Fallback(prompt string, flags models.ClassificationFlags, reason string) models.ModelRoute {
	genType, model := t.Classify(flags, DetectIntent(prompt))
	return models.ModelRoute{
		GenerationType: genType,
		Model:          model,
		EnhancedPrompt: Enhance(prompt, genType),
		Confidence:     1.0,
		Reasoning:      reason,
		Method:         models.MethodRule,
	}
}

// Plausible reports whether a generation type is structurally possible given
// the flags. The LLM classifier uses it to reject answers that contradict
// the request's source material, e.g. EDIT_IMAGE with no active image.
func Plausible(genType models.GenerationType, flags models.ClassificationFlags) bool {
	if !genType.Valid() {
		return false
	}
	hasReference := flags.HasUploadedImage || flags.HasNamedReference || flags.ReferenceCount > 0
	if genType.NeedsActiveImage() && !flags.HasActiveImage {
		return false
	}
	if genType.NeedsReference() && !hasReference {
		return false
	}
	return true
}
