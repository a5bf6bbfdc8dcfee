package orchestrators

import (
	"context"
	"time"

	"hear/internal/adapters/backend"
)

// HealthReport is the outcome of a backend health check.
type HealthReport struct {
	OK       bool
	Rows     int
	Category string
	Detail   string
	Took     time.Duration
}

// ExecuteHealthCheck counts consultations to prove the backend answers.
// PRE: client is non-nil
// POST: never returns an error; failures are described in the report
func ExecuteHealthCheck(ctx context.Context, client backend.Client) HealthReport {
	start := time.Now()
	n, err := client.From(backend.TableConsultations).Count(ctx)
	r := HealthReport{Took: time.Since(start)}
	if err != nil {
		r.Category = backend.Classify(err).String()
		r.Detail = backend.Detail(err)
		return r
	}
	r.OK = true
	r.Rows = n
	return r
}
