package rules

import (
	"regexp"
	"strings"
)

// Intent holds the keyword-derived signals scanned from a prompt.
type Intent struct {
	Video bool
	Audio bool
}

// The three vocabularies are kept disjoint on purpose: a word may appear in
// at most one set. Edit verbs ("remove", "replace", "move", "zoom") never
// appear in the video or audio sets, so an edit request against an active
// image cannot accidentally route to a video model. The known cost is that
// genuinely ambiguous prompts ("make this move") read as edits; the video
// signal has to come from an unambiguous word like "animate" or "motion".
var (
	videoWords = []string{
		"animate", "animated", "animation", "animating",
		"motion", "moving",
		"video", "clip", "footage",
		"timelapse", "time-lapse", "cinemagraph",
		"slow motion", "slow-mo",
		"bring to life", "come to life", "comes to life",
		"loop", "looping", "gif",
	}
	audioWords = []string{
		"sound", "sounds", "audio", "music", "soundtrack",
		"song", "singing", "sing",
		"voice", "voiceover", "narration", "narrate", "narrating",
		"speech", "speaking", "dialogue",
		"sfx", "humming",
	}
	// editWords is not consulted for routing (edit intent comes from the
	// image-state flags), it exists so tests can assert the partition stays
	// disjoint as vocabularies grow.
	editWords = []string{
		"change", "modify", "adjust", "remove", "erase", "replace",
		"recolor", "retouch", "fix", "correct", "brighten", "darken",
		"crop", "rotate", "move", "zoom",
	}

	videoRe = compileWordSet(videoWords)
	audioRe = compileWordSet(audioWords)
)

func compileWordSet(words []string) *regexp.Regexp {
	escaped := make([]string, len(words))
	for i, w := range words {
		escaped[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(escaped, "|") + `)\b`)
}

// DetectIntent scans the prompt for video and audio vocabulary. Matching is
// whole-word so "remove" never triggers on "move" and vice versa.
func DetectIntent(prompt string) Intent {
	return Intent{
		Video: videoRe.MatchString(prompt),
		Audio: audioRe.MatchString(prompt),
	}
}
