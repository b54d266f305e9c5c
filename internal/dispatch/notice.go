package dispatch

import (
	"strings"
	"sync"
	"time"
)

// Variant styles a notice.
type Variant string

const (
	VariantSuccess Variant = "success"
	VariantError   Variant = "error"
	VariantInfo    Variant = "info"
)

// Notice is a transient user-facing popup.
type Notice struct {
	Title    string
	Subtitle string
	Variant  Variant
	At       time.Time
}

// NotifyFunc receives notices.
type NotifyFunc func(Notice)

// classify maps a dispatch error to a notice title.
func classify(err error) string {
	if strings.Contains(strings.ToLower(err.Error()), "insufficient balance") {
		return "Insufficient balance"
	}
	return "Buy Failed"
}

// Loading tracks which buy controls are busy.
type Loading struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewLoading creates an empty Loading set.
func NewLoading() *Loading {
	return &Loading{keys: make(map[string]struct{})}
}

// Set marks key busy. It returns false if key was already busy.
func (l *Loading) Set(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[key]; ok {
		return false
	}
	l.keys[key] = struct{}{}
	return true
}

// Clear marks key idle.
func (l *Loading) Clear(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
}

// Active reports whether key is busy.
func (l *Loading) Active(key string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.keys[key]
	return ok
}

// Len returns the number of busy keys.
func (l *Loading) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.keys)
}
