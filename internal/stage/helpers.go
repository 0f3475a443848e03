package stage

import (
	"os"
	"strings"

	"fission/internal/project"
	"fission/internal/services"
)

// RequireMedia returns the project's ingested media handle, or a validation
// error suitable for stage Execute methods when ingest has not recorded one.
func RequireMedia(p *project.Project, stageName string) (string, error) {
	if p == nil {
		return "", services.Wrap(services.ErrValidation, stageName, "require media", "project is nil", nil)
	}
	media := strings.TrimSpace(p.MediaPath)
	if media == "" {
		return "", services.Wrap(services.ErrValidation, stageName, "require media",
			"Media handle missing; rerun ingest", nil)
	}
	if _, err := os.Stat(media); err != nil {
		return "", services.Wrap(services.ErrValidation, stageName, "require media",
			"Media handle not readable; rerun ingest", err)
	}
	return media, nil
}
