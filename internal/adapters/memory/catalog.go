package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/robertarktes/ticket-storefront/internal/domain"
)

type Catalog struct {
	mu     sync.RWMutex
	events map[string]domain.Event
}

func NewCatalog(events ...domain.Event) *Catalog {
	c := &Catalog{events: make(map[string]domain.Event)}
	for _, ev := range events {
		c.events[ev.EventID] = ev
	}
	return c
}

// Put inserts or replaces an event, the way an admin edit would.
func (c *Catalog) Put(ev domain.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[ev.EventID] = ev
}

func (c *Catalog) Lookup(ctx context.Context, eventID string) (*domain.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ev, ok := c.events[eventID]
	if !ok {
		return nil, errors.Wrapf(domain.ErrNotFound, "event %s", eventID)
	}
	return &ev, nil
}

func (c *Catalog) List(ctx context.Context) ([]domain.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	events := make([]domain.Event, 0, len(c.events))
	for _, ev := range c.events {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Date.Equal(events[j].Date) {
			return events[i].EventID < events[j].EventID
		}
		return events[i].Date.Before(events[j].Date)
	})
	return events, nil
}
