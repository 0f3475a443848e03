package workflow

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"fission/internal/project"
	"fission/internal/services"
)

func withStageContext(ctx context.Context, p *project.Project, stg project.Stage, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if p != nil {
		ctx = services.WithProjectID(ctx, p.ID)
	}
	if stg != project.StageNone {
		ctx = services.WithStage(ctx, string(stg))
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}

// stageLabel renders a stage name for humans: GenerateVideoAssets becomes
// "Generate Video Assets".
func stageLabel(stg project.Stage) string {
	name := string(stg)
	if name == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return cases.Title(language.English).String(b.String())
}
