package graph

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// errAlreadyActive is returned by Create when a singleton graph already
// exists.
var errAlreadyActive = errors.New("graph: a singleton graph is already active")

// Exactly one graph is active at a time: a process-wide singleton with
// create/destroy lifecycle, for callers — chiefly the control-frame
// entry points (internal/controlplane) — that have no way to carry a
// Graph handle across calls. Code that already holds a *Graph (e.g.
// tests, or a future multi-graph host) should use New directly instead.
var (
	singletonMu sync.Mutex
	singleton   *Graph
)

// Create installs a new active singleton graph. Fails if one is already
// active.
func Create(log *zap.Logger) (*Graph, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singleton != nil {
		return nil, errAlreadyActive
	}
	singleton = New(log)
	return singleton, nil
}

// ActiveSingleton returns the current singleton graph, or ErrNoActiveGraph
// if none has been created.
func ActiveSingleton() (*Graph, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singleton == nil {
		return nil, ErrNoActiveGraph
	}
	return singleton, nil
}

// DestroySingleton destroys the active singleton graph and clears it, so
// a subsequent Create starts from a fresh epoch/counter space.
func DestroySingleton() error {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singleton == nil {
		return ErrNoActiveGraph
	}
	err := singleton.Destroy()
	singleton = nil
	return err
}
