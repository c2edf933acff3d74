package subscribe

import (
	"sync"
	"time"

	"github.com/leapstack-labs/livegate/internal/paginate"
)

// Push is one result delivery to a client channel.
type Push struct {
	SubscriptionID string         `json:"subscriptionId"`
	Seq            uint64         `json:"seq"`
	Page           *paginate.Page `json:"page"`
}

// ChannelDisconnectedError reports an operation against a client whose
// live channel is gone.
type ChannelDisconnectedError struct {
	ClientID string
}

func (e *ChannelDisconnectedError) Error() string {
	return "client " + e.ClientID + " has no live channel"
}

// Channel is the outbound half of one client's live connection. The
// SSE handler drains C; the manager feeds it.
type Channel struct {
	clientID string
	ch       chan Push
	timeout  time.Duration

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newChannel(clientID string, buffer int, timeout time.Duration) *Channel {
	if buffer <= 0 {
		buffer = 16
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Channel{
		clientID: clientID,
		ch:       make(chan Push, buffer),
		timeout:  timeout,
		done:     make(chan struct{}),
	}
}

// ClientID returns the owning client's identifier.
func (c *Channel) ClientID() string {
	return c.clientID
}

// C returns the delivery channel. It is never closed; readers stop on
// Done instead.
func (c *Channel) C() <-chan Push {
	return c.ch
}

// Done is closed when the channel shuts down.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// send queues a push, giving a slow consumer until the send timeout to
// drain. Returns a disconnect error when the channel is closed or the
// timeout elapses.
func (c *Channel) send(p Push) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &ChannelDisconnectedError{ClientID: c.clientID}
	}
	c.mu.Unlock()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case c.ch <- p:
		return nil
	case <-c.done:
		return &ChannelDisconnectedError{ClientID: c.clientID}
	case <-timer.C:
		return &ChannelDisconnectedError{ClientID: c.clientID}
	}
}

// close shuts the channel down. Safe to call more than once.
func (c *Channel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
