package rules

import "github.com/atelier-ai/atelier/pkg/models"

// Deterministic prompt-rewrite clauses. Enhancement runs strictly after
// type and model selection so a rewritten prompt can never influence
// routing.
const (
	identityClause = "Preserve the identity and distinctive features of the referenced subject. "
	maintainClause = " Maintain all other aspects of the original image."
	motionClause   = " Smooth, natural motion with a consistent subject throughout."
	audioClause    = " Include fitting audio for the scene."
)

// Enhance applies the generation type's rewrite template to a prompt.
// NEW_IMAGE prompts pass through unchanged.
func Enhance(prompt string, genType models.GenerationType) string {
	switch genType {
	case models.NewImage:
		return prompt
	case models.NewImageRef:
		return identityClause + prompt
	case models.EditImage:
		return prompt + maintainClause
	case models.EditImageRef:
		return identityClause + prompt + maintainClause
	case models.EditImageAddNew:
		return identityClause + prompt + maintainClause
	case models.NewVideo, models.ImageToVideo:
		return prompt + motionClause
	case models.NewVideoWithAudio, models.ImageToVideoWithAudio:
		return prompt + motionClause + audioClause
	case models.EditImageRefToVideo:
		return identityClause + prompt + motionClause
	}
	return prompt
}
