package plugin

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// Registry holds one ordered callback list per position and performs
// dispatch.
//
// The Registry does no locking of its own: the Manager is its single
// owner and serializes all mutation. Dispatch iterates over a snapshot
// taken when it begins, so the order seen by one event is the sorted
// order at that moment.
type Registry struct {
	log   logrus.FieldLogger
	lists map[Position][]Callback
}

// NewRegistry creates a registry with an empty list for every position.
func NewRegistry(log logrus.FieldLogger) *Registry {
	if log == nil {
		log = logrus.StandardLogger()
	}
	lists := make(map[Position][]Callback, int(numPositions))
	for _, p := range Positions() {
		lists[p] = nil
	}
	return &Registry{log: log, lists: lists}
}

// Register appends a callback to its position's list. Sorting is
// batched: callers mutate in bulk and then Resort before the next
// dispatch.
func (r *Registry) Register(cb Callback) {
	pos := cb.Position()
	r.lists[pos] = append(r.lists[pos], cb)
}

// Resort stable-sorts one position's list by ascending priority.
func (r *Registry) Resort(pos Position) {
	list := r.lists[pos]
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority() < list[j].Priority()
	})
}

// ResortAll stable-sorts every position's list.
func (r *Registry) ResortAll() {
	for _, p := range Positions() {
		r.Resort(p)
	}
}

// UnregisterAll removes every given callback from every position's
// list, comparing by identity.
func (r *Registry) UnregisterAll(cbs []Callback) {
	if len(cbs) == 0 {
		return
	}
	owned := make(map[Callback]bool, len(cbs))
	for _, cb := range cbs {
		owned[cb] = true
	}
	for _, p := range Positions() {
		list := r.lists[p]
		kept := list[:0]
		for _, cb := range list {
			if !owned[cb] {
				kept = append(kept, cb)
			}
		}
		for i := len(kept); i < len(list); i++ {
			list[i] = nil
		}
		r.lists[p] = kept
	}
}

// Clear drops every registered callback.
func (r *Registry) Clear() {
	for _, p := range Positions() {
		r.lists[p] = nil
	}
}

// Callbacks returns a copy of one position's list in dispatch order.
func (r *Registry) Callbacks(pos Position) []Callback {
	return append([]Callback(nil), r.lists[pos]...)
}

// Len returns the number of callbacks registered at a position.
func (r *Registry) Len(pos Position) int {
	return len(r.lists[pos])
}

// Contains reports whether the callback is registered at any position.
func (r *Registry) Contains(cb Callback) bool {
	for _, p := range Positions() {
		for _, got := range r.lists[p] {
			if got == cb {
				return true
			}
		}
	}
	return false
}

// Dispatch invokes a position's callbacks in priority order. Disabled
// callbacks are skipped. A callback error or panic is logged and the
// next callback still runs; a Stop result halts the remaining
// callbacks for this event only. Dispatch itself never fails.
func (r *Registry) Dispatch(pos Position, ctx *Context) {
	r.dispatch(r.Callbacks(pos), pos, ctx)
}

// dispatch runs a pre-snapshotted callback list. Split out so the
// Manager can snapshot under its read lock and invoke outside it.
func (r *Registry) dispatch(cbs []Callback, pos Position, ctx *Context) {
	if len(cbs) == 0 {
		return
	}

	r.log.WithField("position", pos.String()).
		Debugf("dispatching %d callbacks", len(cbs))

	for _, cb := range cbs {
		if !cb.Enabled() {
			continue
		}
		res, err := safeInvoke(cb, ctx)
		if err != nil {
			r.log.WithField("position", pos.String()).
				Errorf("callback error: %v", err)
			continue
		}
		if res == Stop {
			r.log.WithField("position", pos.String()).
				Debug("callback stopped further processing")
			break
		}
	}
}

// safeInvoke runs a callback with panic recovery. A recovered panic is
// reported as an error so a misbehaving plugin cannot take down
// dispatch.
func safeInvoke(cb Callback, ctx *Context) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Continue
			err = panicError(r)
		}
	}()
	return cb.Invoke(ctx)
}
