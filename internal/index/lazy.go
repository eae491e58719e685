package index

import "sync"

// Lazy builds an Engine on first use and hands the same instance to every caller.
type Lazy struct {
	mu     sync.Mutex
	load   func() (*Engine, error)
	engine *Engine
	err    error
	done   bool
}

// NewLazy returns a handle that calls load once, on the first Get.
func NewLazy(load func() (*Engine, error)) *Lazy {
	return &Lazy{load: load}
}

// Get returns the engine, loading it if needed. A load error is sticky.
func (l *Lazy) Get() (*Engine, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.engine, l.err = l.load()
		l.done = true
	}
	return l.engine, l.err
}

// Loaded reports whether an engine has been built.
func (l *Lazy) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine != nil
}

// Close closes the engine if it was ever built.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.engine == nil {
		return nil
	}
	return l.engine.Close()
}
