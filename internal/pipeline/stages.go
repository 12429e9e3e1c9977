package pipeline

import "github.com/penmanapp/penman/internal/models"

// Pipeline stage labels, reported as the job's progress_stage. Stages run
// strictly in sequence; later stages consume earlier outputs.
const (
	StageInitialising     = "initialising"
	StageAnalysingInput   = "analysing_input"
	StageGeneratingPost   = "generating_primary_content"
	StageGeneratingImage  = "generating_secondary_asset"
	StageGeneratingMeta   = "generating_metadata"
	StageCreatingArtifact = "creating_artifact"
	StageFinalising       = "finalising"
)

// StagesFor returns the ordered stage sequence for a job's options.
// The image and metadata stages are conditional.
func StagesFor(opts models.GenerationOptions) []string {
	stages := []string{StageInitialising, StageAnalysingInput, StageGeneratingPost}
	if opts.GenerateImage {
		stages = append(stages, StageGeneratingImage)
	}
	if opts.GenerateMetadata {
		stages = append(stages, StageGeneratingMeta)
	}
	return append(stages, StageCreatingArtifact, StageFinalising)
}
