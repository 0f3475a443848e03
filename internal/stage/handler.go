package stage

import (
	"context"

	"fission/internal/project"
)

// Handler describes the contract the workflow manager needs from each stage.
// Execute never panics on provider failures; it reports them through Result.
type Handler interface {
	Execute(context.Context, *project.Project) Result
	HealthCheck(context.Context) Health
}
