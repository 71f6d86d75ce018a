// Package shutdown runs registered cleanup callbacks on exit, bounded by a
// context so a stuck callback cannot hang the process.
package shutdown

import (
	"context"
	"sync"

	"github.com/betbot/earnbot/pkg/logger"
)

// Handler is one cleanup callback. It must return when ctx is done.
type Handler func(ctx context.Context)

// Manager collects cleanup callbacks and runs them concurrently at exit.
type Manager struct {
	mu       sync.Mutex
	handlers []Handler
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// OnShutdown registers a cleanup callback.
func (m *Manager) OnShutdown(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Shutdown runs all registered callbacks and waits for them to finish or
// for ctx to expire, whichever comes first.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	handlers := m.handlers
	m.mu.Unlock()

	if len(handlers) == 0 {
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(handlers))
	for _, h := range handlers {
		go func(h Handler) {
			defer wg.Done()
			h(ctx)
		}(h)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.Warnf("shutdown timed out: %v", ctx.Err())
	}
}
