package reconcile

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown drives a 1-second local display timer from an Anchor. Expiry is
// advisory; the server decides when a poll really ends.
type Countdown struct {
	clock    clockwork.Clock
	anchor   Anchor
	ticker   clockwork.Ticker
	onTick   func(remaining time.Duration)
	onExpire func()

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// StartCountdown reports the current remaining time right away, then once a second
// until expiry or Stop.
func StartCountdown(clock clockwork.Clock, anchor Anchor, onTick func(time.Duration), onExpire func()) *Countdown {
	c := &Countdown{
		clock:    clock,
		anchor:   anchor,
		onTick:   onTick,
		onExpire: onExpire,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if c.tick() {
		close(c.done)
		return c
	}

	c.ticker = clock.NewTicker(time.Second)
	go c.run()
	return c
}

func (c *Countdown) run() {
	defer close(c.done)
	defer c.ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-c.ticker.Chan():
			select {
			case <-c.stop:
				return
			default:
			}
			if c.tick() {
				return
			}
		}
	}
}

// tick reports remaining time and returns true once expired
func (c *Countdown) tick() bool {
	remaining := c.anchor.Remaining(c.clock.Now())
	if c.onTick != nil {
		c.onTick(remaining)
	}
	if remaining > 0 {
		return false
	}
	if c.onExpire != nil {
		c.onExpire()
	}
	return true
}

// Stop cancels the countdown and waits for it to exit. Must not be called
// from the countdown's own callbacks.
func (c *Countdown) Stop() {
	c.once.Do(func() {
		close(c.stop)
	})
	<-c.done
}

// Done is closed once the countdown has expired or been stopped
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

// Anchor returns the anchor the countdown runs against
func (c *Countdown) Anchor() Anchor {
	return c.anchor
}
