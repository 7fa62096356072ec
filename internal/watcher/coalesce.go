package watcher

import (
	"context"
	"time"
)

// coalescer batches change events. A batch is released once delay passes
// without a new event. A later event for a path replaces the earlier one
// but keeps its position in the batch.
type coalescer struct {
	delay time.Duration
	in    chan ChangeEvent
	out   chan []ChangeEvent
}

func newCoalescer(delay time.Duration) *coalescer {
	return &coalescer{
		delay: delay,
		in:    make(chan ChangeEvent, 128),
		out:   make(chan []ChangeEvent, 4),
	}
}

// offer queues ev without blocking and reports whether it was accepted.
func (c *coalescer) offer(ev ChangeEvent) bool {
	select {
	case c.in <- ev:
		return true
	default:
		return false
	}
}

func (c *coalescer) run(ctx context.Context) {
	var (
		batch []ChangeEvent
		slot  = map[string]int{}
		timer *time.Timer
		quiet <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-c.in:
			if i, seen := slot[ev.Path]; seen {
				batch[i] = ev
			} else {
				slot[ev.Path] = len(batch)
				batch = append(batch, ev)
			}
			if timer == nil {
				timer = time.NewTimer(c.delay)
			} else {
				timer.Reset(c.delay)
			}
			quiet = timer.C

		case <-quiet:
			quiet = nil
			select {
			case c.out <- batch:
			case <-ctx.Done():
				return
			}
			batch = nil
			slot = map[string]int{}
		}
	}
}
