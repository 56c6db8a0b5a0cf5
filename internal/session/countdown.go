package session

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// TickInterval is the countdown resolution.
const TickInterval = time.Second

// Ticker is driven by a Countdown. Tick returns false when the countdown
// should stop. ctx is cancelled once the loop that delivered the tick has
// been stopped or replaced; Tick should check it under its own lock and
// ignore the call if it is done.
type Ticker interface {
	Tick(ctx context.Context) bool
}

// Countdown drives a Ticker once per TickInterval. At most one goroutine is
// active per Countdown: Start stops the previous one first.
type Countdown struct {
	clock clock.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
}

// NewCountdown creates a stopped Countdown.
func NewCountdown(clk clock.Clock) *Countdown {
	return &Countdown{clock: clk}
}

// Start launches the countdown goroutine. ctx cancellation stops it.
func (c *Countdown) Start(ctx context.Context, target Ticker) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.gen++
	gen := c.gen
	// Create the ticker before returning so a virtual clock advanced right
	// after Start always sees it.
	ticker := c.clock.Ticker(TickInterval)
	c.mu.Unlock()

	go c.run(runCtx, ticker, target, gen)
}

func (c *Countdown) run(ctx context.Context, ticker *clock.Ticker, target Ticker, gen uint64) {
	defer ticker.Stop()
	defer c.finished(gen)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A stop or restart may race with a pending tick; it wins.
			if !c.current(gen) {
				return
			}
			if !target.Tick(ctx) {
				return
			}
		}
	}
}

// current reports whether gen is the live loop.
func (c *Countdown) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.cancel != nil
}

func (c *Countdown) finished(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen == gen && c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Stop cancels the running countdown, if any. It does not wait for the
// goroutine, so it is safe to call from a Tick callback.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// Active reports whether a countdown is running.
func (c *Countdown) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}
