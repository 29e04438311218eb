package stub

import (
	"context"
	"sync"

	"wallet-fleet/internal/solana"
)

// Confirmer implements solana.Confirmer in memory. Subscriptions resolve
// immediately with WaitErrors[signature] (nil confirms).
type Confirmer struct {
	// SubscribeErr, when set, fails every Subscribe.
	SubscribeErr error
	// WaitErrors resolves Wait per signature.
	WaitErrors map[string]error

	mu         sync.Mutex
	subscribed map[string]bool
	cancelled  []string
	closed     bool
}

var _ solana.Confirmer = (*Confirmer)(nil)

// NewConfirmer creates a stub confirmer that confirms everything.
func NewConfirmer() *Confirmer {
	return &Confirmer{
		WaitErrors: make(map[string]error),
		subscribed: make(map[string]bool),
	}
}

// Subscribe records the signature.
func (c *Confirmer) Subscribe(_ context.Context, signature string) (solana.Subscription, error) {
	if c.SubscribeErr != nil {
		return nil, c.SubscribeErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, solana.ErrChannelClosed
	}
	c.subscribed[signature] = true

	return &subscription{owner: c, signature: signature}, nil
}

// IsSubscribed reports whether signature was subscribed.
func (c *Confirmer) IsSubscribed(signature string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed[signature]
}

// Subscriptions returns the number of distinct subscribed signatures.
func (c *Confirmer) Subscriptions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribed)
}

// Cancelled returns the signatures whose subscriptions were cancelled.
func (c *Confirmer) Cancelled() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.cancelled...)
}

// Close marks the confirmer closed.
func (c *Confirmer) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

type subscription struct {
	owner     *Confirmer
	signature string
	once      sync.Once
}

func (s *subscription) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.owner.mu.Lock()
	defer s.owner.mu.Unlock()
	return s.owner.WaitErrors[s.signature]
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.owner.mu.Lock()
		s.owner.cancelled = append(s.owner.cancelled, s.signature)
		s.owner.mu.Unlock()
	})
}
