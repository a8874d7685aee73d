package server

import "context"

// HealthChecker answers the /health liveness probe. Implementations must
// be cheap; orchestrators poll the route.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}
