// Package scenario provides a global registry of simulation scenarios.
// Scenarios register themselves in init() functions, so the CLI and the
// viewer can discover them without hardcoded dependencies.
package scenario

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vovakirdan/rollphys/internal/config"
	"github.com/vovakirdan/rollphys/internal/maps"
	"github.com/vovakirdan/rollphys/internal/physics"
	"github.com/vovakirdan/rollphys/internal/rollback"
	"github.com/vovakirdan/rollphys/internal/snapshot"
)

// ErrUnknown is returned by Create for ids nobody registered.
var ErrUnknown = errors.New("scenario: unknown scenario")

// Scenario is a deterministic simulation the rollback driver can step.
// Everything that influences future frames lives in the physics world, so
// Capture and Restore on the world are enough to rewind the scenario.
type Scenario interface {
	rollback.Simulation
	rollback.Pruner

	// ID returns the registry key, e.g. "tanks".
	ID() string
	Title() string

	// World exposes the physics context for rendering and inspection.
	World() *physics.World

	// Players returns the controlled body of each player slot in order.
	Players() []snapshot.BodyID
}

// Options configures a new scenario instance.
type Options struct {
	Config  config.SimConfig
	Map     *maps.Map // nil means the scenario's default geometry
	Players int       // 0 means every available slot
}

// Info contains metadata about a registered scenario.
type Info struct {
	ID    string
	Title string
}

// Factory creates a new instance of a scenario.
type Factory func(opts Options) (Scenario, error)

var (
	factories = make(map[string]Factory)
	titles    = make(map[string]string)
	mu        sync.RWMutex
)

// Register adds a scenario factory to the registry.
// Panics if a scenario with the same ID is already registered.
func Register(id, title string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[id]; exists {
		panic(fmt.Sprintf("scenario: %q already registered", id))
	}
	factories[id] = f
	titles[id] = title
}

// List returns all registered scenarios, sorted by ID.
func List() []Info {
	mu.RLock()
	defer mu.RUnlock()

	result := make([]Info, 0, len(factories))
	for id := range factories {
		result = append(result, Info{ID: id, Title: titles[id]})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}

// Create instantiates a scenario by its ID.
func Create(id string, opts Options) (Scenario, error) {
	mu.RLock()
	f, ok := factories[id]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknown, id)
	}
	return f(opts)
}

// Exists checks if a scenario with the given ID is registered.
func Exists(id string) bool {
	mu.RLock()
	defer mu.RUnlock()

	_, ok := factories[id]
	return ok
}
