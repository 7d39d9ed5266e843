package health

import "context"

// DBPinger checks conversation store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// ComponentChecker checks one collaborator's availability.
type ComponentChecker interface {
	HealthCheck(ctx context.Context) error
}
