package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atelier-ai/atelier/pkg/models"
)

func TestDetectIntent(t *testing.T) {
	tests := []struct {
		name      string
		prompt    string
		wantVideo bool
		wantAudio bool
	}{
		{"plain image prompt", "a sunset over mountains", false, false},
		{"animate keyword", "animate this painting", true, false},
		{"motion keyword", "add gentle motion to the waves", true, false},
		{"audio keyword", "add sound to this nature scene", false, true},
		{"music keyword", "a forest with birdsong music", false, true},
		{"both", "animate it with a soundtrack", true, true},
		{"edit verb remove is not video", "remove the person from the background", false, false},
		{"edit verb move is not video", "move the tree to the left", false, false},
		{"word boundary: removed does not contain video word", "the removed object", false, false},
		{"case insensitive", "ANIMATE the clouds", true, false},
		{"multiword video phrase", "bring to life this old photograph", true, false},
		{"substring does not match", "premovie poster", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectIntent(tt.prompt)
			assert.Equal(t, tt.wantVideo, got.Video, "video intent")
			assert.Equal(t, tt.wantAudio, got.Audio, "audio intent")
		})
	}
}

// The vocabularies must stay disjoint: a word in two sets would make intent
// detection order-dependent.
func TestWordSetsDisjoint(t *testing.T) {
	sets := map[string][]string{
		"video": videoWords,
		"audio": audioWords,
		"edit":  editWords,
	}
	seen := make(map[string]string)
	for name, words := range sets {
		for _, w := range words {
			w = strings.ToLower(w)
			if prev, ok := seen[w]; ok {
				t.Errorf("word %q appears in both %s and %s sets", w, prev, name)
			}
			seen[w] = name
		}
	}
}

func TestClassify(t *testing.T) {
	table := New()
	ms := DefaultModels()

	tests := []struct {
		name      string
		flags     models.ClassificationFlags
		prompt    string
		wantType  models.GenerationType
		wantModel string
	}{
		{
			name:      "plain prompt no source material",
			prompt:    "a sunset over mountains",
			wantType:  models.NewImage,
			wantModel: ms.BaseImage,
		},
		{
			name:      "named reference no active image",
			flags:     models.ClassificationFlags{HasNamedReference: true, ReferenceCount: 1},
			prompt:    "a portrait in the style of @vangogh",
			wantType:  models.NewImageRef,
			wantModel: ms.RefImage,
		},
		{
			name:      "active image edit",
			flags:     models.ClassificationFlags{HasActiveImage: true},
			prompt:    "Make the sky more vibrant",
			wantType:  models.EditImage,
			wantModel: ms.EditImage,
		},
		{
			name:      "active image plus named reference",
			flags:     models.ClassificationFlags{HasActiveImage: true, HasNamedReference: true, ReferenceCount: 1},
			prompt:    "redraw the face like @heroine",
			wantType:  models.EditImageRef,
			wantModel: ms.EditImage,
		},
		{
			name:      "active image plus upload",
			flags:     models.ClassificationFlags{HasActiveImage: true, HasUploadedImage: true, ReferenceCount: 1},
			prompt:    "put this hat on the subject",
			wantType:  models.EditImageAddNew,
			wantModel: ms.EditImage,
		},
		{
			name:      "video intent no image",
			prompt:    "animate a paper boat drifting downstream",
			wantType:  models.NewVideo,
			wantModel: ms.Video,
		},
		{
			name:      "audio intent no image",
			prompt:    "a rainstorm with thunder sounds",
			wantType:  models.NewVideoWithAudio,
			wantModel: ms.AudioVideo,
		},
		{
			name:      "video intent with active image",
			flags:     models.ClassificationFlags{HasActiveImage: true},
			prompt:    "animate the clouds in this picture",
			wantType:  models.ImageToVideo,
			wantModel: ms.Video,
		},
		{
			name:      "audio intent with active image",
			flags:     models.ClassificationFlags{HasActiveImage: true},
			prompt:    "add sound to this nature scene",
			wantType:  models.ImageToVideoWithAudio,
			wantModel: ms.AudioVideo,
		},
		{
			name:      "reference with video intent",
			flags:     models.ClassificationFlags{HasNamedReference: true, ReferenceCount: 1},
			prompt:    "animate @mascot waving",
			wantType:  models.EditImageRefToVideo,
			wantModel: ms.Video,
		},
		{
			name:      "two references force reference routing",
			flags:     models.ClassificationFlags{HasUploadedImage: true, ReferenceCount: 2},
			prompt:    "combine these two",
			wantType:  models.NewImageRef,
			wantModel: ms.RefImage,
		},
		{
			name:      "two references with video intent",
			flags:     models.ClassificationFlags{HasUploadedImage: true, ReferenceCount: 2},
			prompt:    "animate these two together",
			wantType:  models.EditImageRefToVideo,
			wantModel: ms.Video,
		},
		{
			name:      "edit verbs do not leak into video routing",
			flags:     models.ClassificationFlags{HasActiveImage: true},
			prompt:    "remove the person from the background",
			wantType:  models.EditImage,
			wantModel: ms.EditImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotType, gotModel := table.Classify(tt.flags, DetectIntent(tt.prompt))
			assert.Equal(t, tt.wantType, gotType)
			assert.Equal(t, tt.wantModel, gotModel)
		})
	}
}

// Every flag combination must produce a valid type and a non-empty model.
func TestClassifyIsTotal(t *testing.T) {
	table := New()
	bools := []bool{false, true}
	for _, active := range bools {
		for _, uploaded := range bools {
			for _, named := range bools {
				for refCount := 0; refCount <= 3; refCount++ {
					for _, video := range bools {
						for _, audio := range bools {
							flags := models.ClassificationFlags{
								HasActiveImage:    active,
								HasUploadedImage:  uploaded,
								HasNamedReference: named,
								ReferenceCount:    refCount,
							}
							genType, model := table.Classify(flags, Intent{Video: video, Audio: audio})
							assert.True(t, genType.Valid(), "flags=%+v video=%t audio=%t produced %q", flags, video, audio, genType)
							assert.NotEmpty(t, model)
						}
					}
				}
			}
		}
	}
}

func TestFallback(t *testing.T) {
	table := New()
	route := table.Fallback("animate the waves", models.ClassificationFlags{}, "classifier circuit open")

	assert.Equal(t, models.NewVideo, route.GenerationType)
	assert.Equal(t, models.MethodRule, route.Method)
	assert.Equal(t, 1.0, route.Confidence)
	assert.Equal(t, "classifier circuit open", route.Reasoning)
	assert.Contains(t, route.EnhancedPrompt, "animate the waves")
}

func TestModelFor(t *testing.T) {
	table := New()
	for _, genType := range models.AllGenerationTypes {
		assert.NotEmpty(t, table.ModelFor(genType), "no model for %s", genType)
	}
}

func TestEnhance(t *testing.T) {
	tests := []struct {
		name    string
		genType models.GenerationType
		prompt  string
		want    string
	}{
		{
			name:    "new image passes through unchanged",
			genType: models.NewImage,
			prompt:  "a sunset over mountains",
			want:    "a sunset over mountains",
		},
		{
			name:    "reference adds identity clause",
			genType: models.NewImageRef,
			prompt:  "a portrait in the style of @vangogh",
			want:    identityClause + "a portrait in the style of @vangogh",
		},
		{
			name:    "edit adds maintain clause",
			genType: models.EditImage,
			prompt:  "Make the sky more vibrant",
			want:    "Make the sky more vibrant" + maintainClause,
		},
		{
			name:    "video adds motion clause",
			genType: models.NewVideo,
			prompt:  "a paper boat drifting",
			want:    "a paper boat drifting" + motionClause,
		},
		{
			name:    "audio video adds motion and audio clauses",
			genType: models.ImageToVideoWithAudio,
			prompt:  "a rainstorm",
			want:    "a rainstorm" + motionClause + audioClause,
		},
		{
			name:    "reference to video combines identity and motion",
			genType: models.EditImageRefToVideo,
			prompt:  "wave hello",
			want:    identityClause + "wave hello" + motionClause,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Enhance(tt.prompt, tt.genType))
		})
	}
}

// Enhancement is deterministic: same inputs, same output.
func TestEnhanceDeterministic(t *testing.T) {
	for _, genType := range models.AllGenerationTypes {
		a := Enhance("a quiet harbor at dawn", genType)
		b := Enhance("a quiet harbor at dawn", genType)
		assert.Equal(t, a, b, "enhance not deterministic for %s", genType)
	}
}

func TestPlausible(t *testing.T) {
	tests := []struct {
		name    string
		genType models.GenerationType
		flags   models.ClassificationFlags
		want    bool
	}{
		{"edit without active image", models.EditImage, models.ClassificationFlags{}, false},
		{"edit with active image", models.EditImage, models.ClassificationFlags{HasActiveImage: true}, true},
		{"ref without reference", models.NewImageRef, models.ClassificationFlags{}, false},
		{"ref with upload", models.NewImageRef, models.ClassificationFlags{HasUploadedImage: true, ReferenceCount: 1}, true},
		{"image to video without image", models.ImageToVideo, models.ClassificationFlags{}, false},
		{"new image always plausible", models.NewImage, models.ClassificationFlags{}, true},
		{"new video always plausible", models.NewVideo, models.ClassificationFlags{HasActiveImage: true}, true},
		{"add new needs both", models.EditImageAddNew, models.ClassificationFlags{HasUploadedImage: true, ReferenceCount: 1}, false},
		{"invalid type", models.GenerationType("BOGUS"), models.ClassificationFlags{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Plausible(tt.genType, tt.flags))
		})
	}
}

func TestNewWithModels(t *testing.T) {
	table := NewWithModels(ModelSet{
		BaseImage:  "custom-image",
		RefImage:   "custom-ref",
		EditImage:  "custom-edit",
		Video:      "custom-video",
		AudioVideo: "custom-av",
	})

	genType, model := table.Classify(models.ClassificationFlags{}, Intent{})
	assert.Equal(t, models.NewImage, genType)
	assert.Equal(t, "custom-image", model)
}
