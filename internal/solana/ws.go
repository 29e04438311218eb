package solana

import (
	"context"
	"errors"
	"fmt"

	"wallet-fleet/internal/domain"
)

// Confirmation channel errors.
var (
	// ErrConnectionLost is delivered to every waiter registered on a
	// connection that dropped. The signature may still confirm; callers
	// reconcile by balance rather than assume failure.
	ErrConnectionLost = fmt.Errorf("%w: confirmation channel connection lost", domain.ErrTransport)

	// ErrChannelClosed is returned by all operations after Close.
	ErrChannelClosed = errors.New("confirmation channel: closed")

	// ErrConfirmTimeout is returned by Wait when no notification arrived in time.
	ErrConfirmTimeout = errors.New("confirmation channel: timed out waiting for confirmation")

	// ErrTransactionFailed is returned when the notification reports an on-chain error.
	ErrTransactionFailed = errors.New("transaction failed on chain")
)

// Confirmer multiplexes "wait until signature X is confirmed" requests.
type Confirmer interface {
	// Subscribe registers interest in signature and returns once the node has
	// acknowledged the subscription. Broadcasting after Subscribe returns
	// cannot miss the notification.
	Subscribe(ctx context.Context, signature string) (Subscription, error)

	// Close releases the connection and fails every pending waiter.
	Close() error
}

// Subscription is one acknowledged signature subscription.
type Subscription interface {
	// Wait blocks until the signature is confirmed, ctx is done or the
	// confirmation timeout expires. It must be called at most once.
	Wait(ctx context.Context) error

	// Cancel drops the subscription without waiting. Safe to call after Wait.
	Cancel()
}

// Confirm subscribes to signature and waits for its confirmation.
// The transaction must already be broadcast, so a notification sent before
// the subscription was acknowledged is lost; the dispatcher uses
// Subscribe and Wait separately instead.
func Confirm(ctx context.Context, c Confirmer, signature string) error {
	sub, err := c.Subscribe(ctx, signature)
	if err != nil {
		return err
	}
	return sub.Wait(ctx)
}
