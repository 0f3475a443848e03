package workflow

import (
	"errors"

	"fission/internal/project"
	"fission/internal/stage"
)

// ErrRunInProgress is returned when a project already has an active run.
var ErrRunInProgress = errors.New("project run already in progress")

// CancelledReason is recorded on projects stopped by a cancel request.
const CancelledReason = "cancelled by request"

// StageSet bundles the concrete handlers the manager orchestrates.
type StageSet struct {
	Ingest              stage.Handler
	Transcribe          stage.Handler
	Analyze             stage.Handler
	GenerateVideoAssets stage.Handler
	GenerateTextAssets  stage.Handler
	Finalize            stage.Handler
}

type pipelineStage struct {
	stage   project.Stage
	handler stage.Handler
}

func (s StageSet) pipeline() []pipelineStage {
	return []pipelineStage{
		{stage: project.StageIngest, handler: s.Ingest},
		{stage: project.StageTranscribe, handler: s.Transcribe},
		{stage: project.StageAnalyze, handler: s.Analyze},
		{stage: project.StageGenerateVideoAssets, handler: s.GenerateVideoAssets},
		{stage: project.StageGenerateTextAssets, handler: s.GenerateTextAssets},
		{stage: project.StageFinalize, handler: s.Finalize},
	}
}

// remaining returns the stages after the recorded checkpoint.
func remaining(stages []pipelineStage, checkpoint project.Stage) []pipelineStage {
	if checkpoint == project.StageNone {
		return stages
	}
	for i, stg := range stages {
		if stg.stage == checkpoint {
			return stages[i+1:]
		}
	}
	return stages
}
