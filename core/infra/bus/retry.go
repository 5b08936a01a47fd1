package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// ErrRetry matches, via errors.Is, every error built by RetryAfter.
var ErrRetry = errors.New("bus: redelivery requested")

type retryError struct {
	cause error
	delay time.Duration
}

func (e *retryError) Error() string {
	if e.delay > 0 {
		return fmt.Sprintf("retry after %s: %v", e.delay, e.cause)
	}
	return fmt.Sprintf("retry: %v", e.cause)
}

func (e *retryError) Unwrap() []error { return []error{ErrRetry, e.cause} }

// RetryAfter asks a durable subscription to redeliver the event after delay.
// Non-durable subscriptions log and drop it.
func RetryAfter(cause error, delay time.Duration) error {
	if cause == nil {
		cause = errors.New("handler busy")
	}
	return &retryError{cause: cause, delay: max(delay, 0)}
}

// RetryDelay reports the delay requested by a RetryAfter error.
func RetryDelay(err error) (time.Duration, bool) {
	var re *retryError
	if errors.As(err, &re) {
		return re.delay, true
	}
	return 0, false
}

// acker is the JetStream message surface settle needs.
type acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	NakWithDelay(delay time.Duration, opts ...nats.AckOpt) error
}

// settle acks msg unless the handler asked for a retry, in which case it naks.
// Other handler errors are logged by the caller and acked, since redelivery
// would fail the same way.
func settle(msg acker, handlerErr error) {
	delay, retry := RetryDelay(handlerErr)
	switch {
	case !retry:
		_ = msg.Ack()
	case delay > 0:
		_ = msg.NakWithDelay(delay)
	default:
		_ = msg.Nak()
	}
}
