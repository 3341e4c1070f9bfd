// ABOUTME: Shared reasoning-visibility flag observed by every store that holds it
// ABOUTME: Changing the flag reclassifies previously stored replies in all of them

package dialog

import "sync"

// Visibility holds the reasoning-hidden flag. One instance may be shared by
// several stores; a change made through any of them applies to all.
type Visibility struct {
	mu     sync.Mutex
	hidden bool
	nextID int
	subs   map[int]func(hidden bool)
}

// NewVisibility returns a flag with the given initial state.
func NewVisibility(hidden bool) *Visibility {
	return &Visibility{
		hidden: hidden,
		subs:   make(map[int]func(bool)),
	}
}

// Hidden reports whether reasoning segments are currently hidden.
func (v *Visibility) Hidden() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hidden
}

// Set updates the flag and notifies subscribers when the value changed.
// It returns whether a change happened.
func (v *Visibility) Set(hidden bool) bool {
	v.mu.Lock()
	if v.hidden == hidden {
		v.mu.Unlock()
		return false
	}
	v.hidden = hidden
	subs := make([]func(bool), 0, len(v.subs))
	for _, fn := range v.subs {
		subs = append(subs, fn)
	}
	v.mu.Unlock()

	// Called without the lock so subscribers may read Hidden().
	for _, fn := range subs {
		fn(hidden)
	}
	return true
}

// Subscribe registers fn to run after every change. The returned function
// removes the subscription and is safe to call more than once.
func (v *Visibility) Subscribe(fn func(hidden bool)) (cancel func()) {
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs[id] = fn
	v.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			v.mu.Lock()
			delete(v.subs, id)
			v.mu.Unlock()
		})
	}
}
