package handler

import (
	"context"

	"github.com/breatheroute/pacekeeper/internal/api/middleware"
)

// GetRunnerID retrieves the authenticated runner ID from the context.
func GetRunnerID(ctx context.Context) string {
	return middleware.GetRunnerID(ctx)
}
