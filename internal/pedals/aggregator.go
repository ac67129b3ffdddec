package pedals

import (
	"context"
	"log"
	"sync"
)

type origin int

const (
	physical origin = iota
	virtual
)

func (o origin) String() string {
	if o == virtual {
		return "virtual"
	}
	return "physical"
}

// Aggregator merges a physical and a virtual pedal source. Physical pedals
// take indices [0, p); virtual pedals follow at [p, p+v).
type Aggregator struct {
	physical Source
	virtual  Source
	out      chan Event

	mu   sync.RWMutex
	phys []bool
	virt []bool
}

// NewAggregator creates an Aggregator. Either source may be nil.
func NewAggregator(physicalSrc, virtualSrc Source) *Aggregator {
	return &Aggregator{
		physical: physicalSrc,
		virtual:  virtualSrc,
		out:      make(chan Event, 16),
	}
}

// Events returns the merged event stream. It is closed when Run returns.
func (a *Aggregator) Events() <-chan Event {
	return a.out
}

// Snapshot returns the combined pedal count and states.
func (a *Aggregator) Snapshot() (int, []bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	states := a.combined()
	return len(states), states
}

// Run forwards events until ctx is cancelled or both sources are closed.
func (a *Aggregator) Run(ctx context.Context) error {
	defer close(a.out)

	var pch, vch <-chan Event
	if a.physical != nil {
		pch = a.physical.Events()
	}
	if a.virtual != nil {
		vch = a.virtual.Events()
	}

	for pch != nil || vch != nil {
		var (
			ev   Event
			ok   bool
			from origin
		)
		select {
		case <-ctx.Done():
			return nil
		case ev, ok = <-pch:
			if !ok {
				pch = nil
				continue
			}
			from = physical
		case ev, ok = <-vch:
			if !ok {
				vch = nil
				continue
			}
			from = virtual
		}

		merged, ok := a.apply(ev, from)
		if !ok {
			continue
		}
		select {
		case a.out <- merged:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// apply records ev from one source and returns the event in the combined
// index space.
func (a *Aggregator) apply(ev Event, from origin) (Event, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	bank := &a.phys
	offset := 0
	if from == virtual {
		bank = &a.virt
		offset = len(a.phys)
	}

	switch ev.Kind {
	case CountChanged:
		*bank = append([]bool(nil), ev.States...)
		all := a.combined()
		return Event{
			Kind:     CountChanged,
			Count:    len(all),
			States:   all,
			Time:     ev.Time,
			Physical: len(a.phys),
			Virtual:  len(a.virt),
		}, true

	case PedalChanged:
		if ev.Index < 0 || ev.Index >= len(*bank) {
			log.Printf("pedals: %s pedal %d out of range (have %d)", from, ev.Index, len(*bank))
			return Event{}, false
		}
		(*bank)[ev.Index] = ev.State
		all := a.combined()
		return Event{
			Kind:     PedalChanged,
			Count:    len(all),
			Index:    ev.Index + offset,
			State:    ev.State,
			States:   all,
			Time:     ev.Time,
			Physical: len(a.phys),
			Virtual:  len(a.virt),
		}, true
	}

	log.Printf("pedals: unknown event kind %q from %s source", ev.Kind, from)
	return Event{}, false
}

// combined must be called with a.mu held.
func (a *Aggregator) combined() []bool {
	all := make([]bool, 0, len(a.phys)+len(a.virt))
	all = append(all, a.phys...)
	return append(all, a.virt...)
}
