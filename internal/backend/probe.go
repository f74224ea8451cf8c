package backend

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is the probe error reported when no networked backend is configured.
var ErrDisabled = errors.New("networked backend disabled")

// Pinger is implemented by backends that support a liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Status is the outcome of the start-up liveness probe. It is computed once
// and handed to the components that need it; nothing re-probes implicitly.
type Status struct {
	Reachable bool
	Err       error
	CheckedAt time.Time
	Latency   time.Duration
}

// Probe pings p once with the given timeout. A nil pinger yields an
// unreachable status carrying ErrDisabled.
func Probe(ctx context.Context, p Pinger, timeout time.Duration) Status {
	st := Status{CheckedAt: time.Now()}
	if p == nil {
		st.Err = ErrDisabled
		return st
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	st.Latency = time.Since(start)
	if err != nil {
		st.Err = err
		return st
	}
	st.Reachable = true
	return st
}

// String renders the status for logs and health endpoints.
func (s Status) String() string {
	if s.Reachable {
		return "reachable"
	}
	if s.Err != nil {
		return "unreachable: " + s.Err.Error()
	}
	return "unreachable"
}
