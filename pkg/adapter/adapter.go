// Package adapter maps raw simulator payloads onto the canonical model. Each
// schema generation the simulator has shipped gets its own Adapter; callers
// only ever see model.Snapshot.
package adapter

import (
	"sort"
	"strings"
	"sync"

	"racedirector/pkg/model"
	"racedirector/pkg/raw"

	"github.com/pkg/errors"
)

const (
	// Auto selects the adapter by inspecting the session payload.
	Auto = "auto"
	// Default is used when detection finds no better match.
	Default = LMU
)

var ErrUnknownAdapter = errors.New("unknown schema adapter")

type Adapter interface {
	Name() string
	// Normalize never fails: malformed field values resolve to the
	// documented defaults.
	Normalize(session raw.Object, vehicles []raw.Object) model.Snapshot
}

// Detector is implemented by adapters that can recognise their own payloads.
type Detector interface {
	Matches(session raw.Object) bool
}

var (
	mu       sync.RWMutex
	adapters = map[string]Adapter{}
	order    []string
)

// Register makes an adapter available by name. Registering a name twice
// replaces the previous adapter.
func Register(a Adapter) {
	mu.Lock()
	defer mu.Unlock()
	name := strings.ToLower(a.Name())
	if _, found := adapters[name]; !found {
		order = append(order, name)
	}
	adapters[name] = a
}

func Lookup(name string) (Adapter, bool) {
	mu.RLock()
	defer mu.RUnlock()
	a, found := adapters[strings.ToLower(strings.TrimSpace(name))]
	return a, found
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := append([]string(nil), order...)
	sort.Strings(names)
	return names
}

// Detect returns the first registered adapter that recognises the payload,
// falling back to Default.
func Detect(session raw.Object) Adapter {
	mu.RLock()
	defer mu.RUnlock()
	for _, name := range order {
		if d, ok := adapters[name].(Detector); ok && d.Matches(session) {
			return adapters[name]
		}
	}
	return adapters[Default]
}

// Resolve picks the adapter for a configured schema name. Auto (or an empty
// name) uses Detect on the given session payload.
func Resolve(name string, session raw.Object) (Adapter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == Auto {
		return Detect(session), nil
	}
	a, found := Lookup(name)
	if !found {
		return nil, errors.Wrapf(ErrUnknownAdapter, "%q", name)
	}
	return a, nil
}

// Valid reports whether name can be passed to Resolve.
func Valid(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == Auto {
		return true
	}
	_, found := Lookup(name)
	return found
}
