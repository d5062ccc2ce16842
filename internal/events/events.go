// Package events carries the engine's event channel. Listeners observe the
// bundling pass (files read, per-file syntax errors, finished bundles) without
// taking part in it, so subscribing never changes bundle content.
package events

import (
	"strings"
	"sync"
)

// Event names shared by engines and the watch collaborator.
const (
	File        = "file"
	SyntaxError = "syntaxError"
	Bundle      = "bundle"
	Update      = "update"
)

// Event is one engine notification. File and Err may be empty depending on
// the name.
type Event struct {
	Name string
	File string
	Err  error
}

// Listener must return quickly.
type Listener func(Event)

// Emitter dispatches events synchronously, in subscription order. It is safe
// for concurrent use.
type Emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[string][]subscription
}

type subscription struct {
	id int
	fn Listener
}

// NewEmitter returns an Emitter with no listeners.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[string][]subscription)}
}

// On subscribes to name. The returned func unsubscribes and may be called
// more than once.
func (e *Emitter) On(name string, fn Listener) func() {
	key := normalizeName(name)
	if key == "" || fn == nil {
		return func() {}
	}

	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[key] = append(e.listeners[key], subscription{id: id, fn: fn})
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(key, id) })
	}
}

// Emit calls every listener of ev.Name. Listeners run outside the lock, so
// they may subscribe or emit themselves.
func (e *Emitter) Emit(ev Event) {
	key := normalizeName(ev.Name)
	e.mu.RLock()
	subs := append([]subscription(nil), e.listeners[key]...)
	e.mu.RUnlock()

	for _, sub := range subs {
		sub.fn(ev)
	}
}

// ListenerCount returns the number of listeners for name.
func (e *Emitter) ListenerCount(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[normalizeName(name)])
}

func (e *Emitter) remove(key string, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	subs := e.listeners[key]
	for i, sub := range subs {
		if sub.id == id {
			e.listeners[key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(e.listeners[key]) == 0 {
		delete(e.listeners, key)
	}
}

func normalizeName(name string) string {
	return strings.TrimSpace(name)
}
