package triage

import (
	"fmt"
	"sync"
)

// Node names of the triage data layout.
const (
	NodeResource = "resourceData"
	NodeRemote   = "remoteData"
)

// NodeSpec declares one node of a data layout. Input nodes have no deps and
// are written directly; derived nodes hydrate once all deps hold a value.
type NodeSpec struct {
	Name string
	Deps []string
	// Cache lets a derived node skip hydration when its inputs carry the same
	// key they had at the last hydration.
	Cache bool
}

type nodeState struct {
	spec     NodeSpec
	key      string
	version  uint64
	dirty    bool
	seenKeys map[string]string
}

// Layout is a small dataflow graph tracking which nodes need hydration.
// Writing an input marks every transitive dependent dirty.
type Layout struct {
	mu    sync.Mutex
	nodes map[string]*nodeState
	order []string
}

// NewLayout validates the graph and orders it so deps come first.
func NewLayout(specs ...NodeSpec) (*Layout, error) {
	l := &Layout{nodes: make(map[string]*nodeState, len(specs))}
	for _, spec := range specs {
		if _, exists := l.nodes[spec.Name]; exists {
			return nil, fmt.Errorf("duplicate node %q", spec.Name)
		}
		l.nodes[spec.Name] = &nodeState{spec: spec}
	}
	for _, spec := range specs {
		for _, dep := range spec.Deps {
			if _, ok := l.nodes[dep]; !ok {
				return nil, fmt.Errorf("node %q depends on unknown node %q", spec.Name, dep)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(specs))
	var visit func(name string) error
	visit = func(name string) error {
		switch marks[name] {
		case visiting:
			return fmt.Errorf("dependency cycle through %q", name)
		case done:
			return nil
		}
		marks[name] = visiting
		for _, dep := range l.nodes[name].spec.Deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		marks[name] = done
		l.order = append(l.order, name)
		return nil
	}
	for _, spec := range specs {
		if err := visit(spec.Name); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// TriageLayout is the fixed resourceData -> remoteData graph. The remote node
// is never cached so each submission refetches live state.
func TriageLayout() *Layout {
	l, err := NewLayout(
		NodeSpec{Name: NodeResource},
		NodeSpec{Name: NodeRemote, Deps: []string{NodeResource}, Cache: false},
	)
	if err != nil {
		panic(err)
	}
	return l
}

// Set records a new value, identified by key, on an input node and returns
// the derived nodes that are now ready to hydrate, in dependency order.
func (l *Layout) Set(name, key string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.nodes[name]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", name)
	}
	n.key = key
	n.version++
	l.markDependents(name)
	return l.readyLocked(), nil
}

// MarkHydrated clears the dirty flag after a node was hydrated with the
// current values of its deps.
func (l *Layout) MarkHydrated(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.nodes[name]
	if !ok {
		return
	}
	n.dirty = false
	n.version++
	n.seenKeys = make(map[string]string, len(n.spec.Deps))
	for _, dep := range n.spec.Deps {
		n.seenKeys[dep] = l.nodes[dep].key
	}
}

// Dirty reports whether a node is waiting for hydration.
func (l *Layout) Dirty(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.nodes[name]
	return ok && n.dirty
}

// Order returns the node names with deps first.
func (l *Layout) Order() []string {
	return append([]string(nil), l.order...)
}

func (l *Layout) markDependents(name string) {
	for _, candidate := range l.order {
		n := l.nodes[candidate]
		for _, dep := range n.spec.Deps {
			if dep != name {
				continue
			}
			if n.spec.Cache && n.seenKeys != nil && n.seenKeys[dep] == l.nodes[dep].key {
				continue
			}
			n.dirty = true
			l.markDependents(candidate)
		}
	}
}

func (l *Layout) readyLocked() []string {
	var ready []string
	for _, name := range l.order {
		n := l.nodes[name]
		if !n.dirty {
			continue
		}
		satisfied := true
		for _, dep := range n.spec.Deps {
			d := l.nodes[dep]
			if d.version == 0 || d.dirty || (len(d.spec.Deps) == 0 && d.key == "") {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, name)
		}
	}
	return ready
}
