package federation

import (
	"context"
	"sort"
	"sync"
)

// Locker serializes jobs sharing targets.
type Locker interface {
	// Lock acquires every name and returns the function releasing them.
	Lock(ctx context.Context, names []string) (unlock func(), err error)
}

// Locks is an in-process Locker with one lock per target name. Names are
// acquired in sorted order so that jobs with overlapping target sets
// cannot deadlock.
type Locks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

var _ Locker = (*Locks)(nil)

// NewLocks creates an empty lock table.
func NewLocks() *Locks {
	return &Locks{slots: make(map[string]chan struct{})}
}

// Lock implements Locker. It gives up when ctx ends.
func (l *Locks) Lock(ctx context.Context, names []string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sorted := uniqueSorted(names)
	held := make([]chan struct{}, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, name := range sorted {
		slot := l.slot(name)
		select {
		case slot <- struct{}{}:
			held = append(held, slot)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *Locks) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[name]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[name] = slot
	}
	return slot
}

func uniqueSorted(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
