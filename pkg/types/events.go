package types

import (
	"reflect"
	"sync"
)

type (
	// EventName is just a type of string, it's the event name
	EventName string

	// EventListener is the type of a listener, it's a func which
	// receives any, optional, arguments from the caller/emitter
	EventListener func(...any)

	// EventEmitter is the message/or/event manager
	EventEmitter interface {
		// On registers a particular listener for an event, func receiver parameter(s) is/are optional
		On(EventName, ...EventListener) error
		// Once adds a one time listener function for the event named eventName.
		// The next time eventName is triggered, this listener is removed and then invoked.
		Once(EventName, ...EventListener) error
		// Emit fires a particular event,
		// synchronously calls each of the listeners registered for the event named
		// eventName, in the order they were registered,
		// passing the supplied arguments to each.
		Emit(EventName, ...any)
		// RemoveListener removes given listener from the event named eventName.
		// Returns an indicator whether listener was removed
		RemoveListener(EventName, EventListener) bool
		// RemoveAllListeners removes all listeners, or those of the specified eventName.
		// Note that it will remove the event itself.
		// Returns an indicator if event and listeners were found before the remove.
		RemoveAllListeners(EventName) bool
		// Listeners returns a copy of the array of listeners for the event named eventName.
		Listeners(EventName) []EventListener
		// ListenerCount returns the length of all registered listeners to a particular event
		ListenerCount(EventName) int
		// EventNames returns an array listing the events for which the emitter has registered listeners.
		EventNames() []EventName
		// Clear removes all events and all listeners
		Clear()
	}

	eventEntry struct {
		fn   EventListener
		ptr  uintptr
		once bool
	}

	emitter struct {
		mu        sync.RWMutex
		listeners map[EventName][]*eventEntry
	}
)

// NewEventEmitter returns a new, empty, EventEmitter
func NewEventEmitter() EventEmitter {
	return &emitter{listeners: map[EventName][]*eventEntry{}}
}

func (e *emitter) add(evt EventName, once bool, listeners []EventListener) error {
	if len(listeners) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		e.listeners[evt] = append(e.listeners[evt], &eventEntry{
			fn:   fn,
			ptr:  reflect.ValueOf(fn).Pointer(),
			once: once,
		})
	}
	return nil
}

func (e *emitter) On(evt EventName, listeners ...EventListener) error {
	return e.add(evt, false, listeners)
}

func (e *emitter) Once(evt EventName, listeners ...EventListener) error {
	return e.add(evt, true, listeners)
}

func (e *emitter) Emit(evt EventName, data ...any) {
	e.mu.Lock()
	entries := e.listeners[evt]
	fns := make([]EventListener, 0, len(entries))
	kept := entries[:0]
	for _, entry := range entries {
		fns = append(fns, entry.fn)
		if !entry.once {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(e.listeners, evt)
	} else {
		e.listeners[evt] = kept
	}
	e.mu.Unlock()

	for _, fn := range fns {
		fn(data...)
	}
}

func (e *emitter) RemoveListener(evt EventName, listener EventListener) bool {
	if listener == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ptr := reflect.ValueOf(listener).Pointer()
	entries := e.listeners[evt]
	for i, entry := range entries {
		if entry.ptr == ptr {
			entries = append(entries[:i], entries[i+1:]...)
			if len(entries) == 0 {
				delete(e.listeners, evt)
			} else {
				e.listeners[evt] = entries
			}
			return true
		}
	}
	return false
}

func (e *emitter) RemoveAllListeners(evt EventName) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.listeners[evt]; !exists {
		return false
	}
	delete(e.listeners, evt)
	return true
}

func (e *emitter) Listeners(evt EventName) []EventListener {
	e.mu.RLock()
	defer e.mu.RUnlock()

	entries := e.listeners[evt]
	fns := make([]EventListener, 0, len(entries))
	for _, entry := range entries {
		fns = append(fns, entry.fn)
	}
	return fns
}

func (e *emitter) ListenerCount(evt EventName) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.listeners[evt])
}

func (e *emitter) EventNames() []EventName {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]EventName, 0, len(e.listeners))
	for name := range e.listeners {
		names = append(names, name)
	}
	return names
}

func (e *emitter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.listeners = map[EventName][]*eventEntry{}
}
