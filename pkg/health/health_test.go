package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fixedChecker struct {
	name string
	err  error
}

func (c fixedChecker) Name() string                    { return c.name }
func (c fixedChecker) Check(ctx context.Context) error { return c.err }

func TestRegistryAggregatesWorstStatus(t *testing.T) {
	r := NewCheckerRegistry()
	assert.Equal(t, StatusHealthy, r.Check(context.Background()).Status)

	r.Register(fixedChecker{name: "postgres"})
	r.Register(fixedChecker{name: "catalog", err: Degraded(errors.New("reload failed"))})
	h := r.Check(context.Background())
	assert.Equal(t, StatusDegraded, h.Status)
	assert.Equal(t, StatusHealthy, h.Checks["postgres"].Status)
	assert.Equal(t, "reload failed", h.Checks["catalog"].Message)

	r.Register(fixedChecker{name: "redis", err: errors.New("connection refused")})
	h = r.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, StatusUnhealthy, h.Checks["redis"].Status)
}

func TestDegradedUnwraps(t *testing.T) {
	cause := errors.New("reload failed")
	err := Degraded(cause)

	assert.ErrorIs(t, err, cause)
	var d *DegradedError
	assert.ErrorAs(t, err, &d)
}
