package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/set-night/gigs/internal/domain"
)

// callClass decides what a failed outbound call means for the operation.
type callClass int

const (
	// softProbe failures count as a positive answer.
	softProbe callClass = iota
	// hardProbe failures abort with remote_unavailable.
	hardProbe
	// critical failures abort with remote_unavailable.
	critical
	// bestEffort failures are logged and dropped.
	bestEffort
)

func (c callClass) String() string {
	switch c {
	case softProbe:
		return "soft_probe"
	case hardProbe:
		return "hard_probe"
	case critical:
		return "critical"
	case bestEffort:
		return "best_effort"
	}
	return "unknown"
}

func (c callClass) failsOpen() bool {
	return c == softProbe || c == bestEffort
}

// caller runs calls to other components under a bounded timeout.
type caller struct {
	timeout time.Duration
}

func newCaller(timeout time.Duration) caller {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return caller{timeout: timeout}
}

type outcome struct {
	op    string
	class callClass
	err   error
}

func (o outcome) Failed() bool {
	return o.err != nil
}

// Cause is the raw error of the call.
func (o outcome) Cause() error {
	return o.err
}

// Err is what the operation should return: nil for fail-open classes,
// the typed rejection itself when the remote side rejected the call,
// and remote_unavailable otherwise.
func (o outcome) Err() error {
	if o.err == nil || o.class.failsOpen() {
		return nil
	}
	var r *domain.Rejection
	if errors.As(o.err, &r) && r.Kind != domain.KindInternal {
		return o.err
	}
	return domain.Unavailable(o.op, o.err)
}

func (c caller) do(ctx context.Context, op string, class callClass, fn func(ctx context.Context) error) outcome {
	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := fn(cctx)
	if err != nil && class.failsOpen() {
		slog.Warn("remote call failed open", "op", op, "class", class.String(), "error", err)
	}
	return outcome{op: op, class: class, err: err}
}

// probe runs an existence check. A soft probe that errors reports true.
func (c caller) probe(ctx context.Context, op string, class callClass, fn func(ctx context.Context) (bool, error)) (bool, error) {
	var found bool
	out := c.do(ctx, op, class, func(ctx context.Context) error {
		var err error
		found, err = fn(ctx)
		return err
	})
	if out.Failed() {
		if class == softProbe {
			return true, nil
		}
		return false, out.Err()
	}
	return found, nil
}
