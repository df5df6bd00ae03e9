package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/egcoder/telegram-ai-bot/internal/calendar"
)

// maxConcurrentPushes bounds the goroutines pushing to sinks per request.
const maxConcurrentPushes = 4

// EventSink receives the calendar event of every linked item, for example a
// calendar API. Push returns a link to the created entry, if any.
type EventSink interface {
	Name() string
	Push(ctx context.Context, ev calendar.Event) (string, error)
}

// push sends every linked item to every sink. A failed push flags its item
// and never fails the request.
func (o *Orchestrator) push(ctx context.Context, items []Item) {
	if len(o.sinks) == 0 {
		return
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(maxConcurrentPushes)

	for i := range items {
		if items[i].Link == nil {
			continue
		}
		ev := items[i].Link.Event
		for _, sink := range o.sinks {
			g.Go(func() error {
				link, err := sink.Push(ctx, ev)
				o.metrics.SinkPush(sink.Name(), err)

				mu.Lock()
				defer mu.Unlock()
				it := &items[i]
				if err != nil {
					if it.PushErrors == nil {
						it.PushErrors = make(map[string]string)
					}
					it.PushErrors[sink.Name()] = err.Error()
					it.Flagged = true
					o.log.WithFields(map[string]interface{}{
						"sink":  sink.Name(),
						"title": it.Title,
					}).Warn("event push failed: %v", err)
					return nil
				}
				if it.Pushed == nil {
					it.Pushed = make(map[string]string)
				}
				it.Pushed[sink.Name()] = link
				return nil
			})
		}
	}
	_ = g.Wait()
}
