package services

import (
	"context"
	"slices"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/core/ports/driven"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// Ensure StateManager implements the interface.
var _ driven.StateManager = (*StateManager)(nil)

var smLog = logger.Named("statemanager")

type descriptor struct {
	source   driven.Source
	parent   *descriptor
	children []*descriptor // least recently used first

	acquired bool
	cookie   any
	release  func() error
}

func (d *descriptor) removeChild(c *descriptor) {
	if i := slices.Index(d.children, c); i >= 0 {
		d.children = slices.Delete(d.children, i, i+1)
	}
}

// StateManager tracks the open state of Sources as a tree rooted at a
// synthetic descriptor. A Source opened while another is being acquired
// becomes that Source's parent: the opener depends on it, and closing the
// parent closes the opener first.
//
// Every descriptor other than the root has at most width children; opening
// one more closes the least recently used child at that level.
//
// A StateManager is not safe for concurrent use.
type StateManager struct {
	width         int
	opened        map[string]*descriptor
	opening       []driven.Source
	top           *descriptor
	configuration map[string]any
}

// NewStateManager creates a StateManager. A width of zero or less disables
// eviction. A nil configuration is replaced by an empty map.
func NewStateManager(width int, configuration map[string]any) *StateManager {
	if configuration == nil {
		configuration = map[string]any{}
	}
	return &StateManager{
		width:         width,
		opened:        make(map[string]*descriptor),
		top:           &descriptor{},
		configuration: configuration,
	}
}

// Width returns the per-level limit on open Sources.
func (sm *StateManager) Width() int {
	return sm.width
}

// Configuration returns the configuration map.
func (sm *StateManager) Configuration() map[string]any {
	return sm.configuration
}

// SetConfiguration replaces the configuration map.
func (sm *StateManager) SetConfiguration(c map[string]any) {
	if c == nil {
		c = map[string]any{}
	}
	sm.configuration = c
}

// Contains reports whether source is open.
func (sm *StateManager) Contains(source driven.Source) bool {
	_, ok := sm.opened[domain.Crunch(source)]
	return ok
}

// Children returns the open Sources directly below source, least recently
// used first. A nil source names the root.
func (sm *StateManager) Children(source driven.Source) []driven.Source {
	d := sm.top
	if source != nil {
		var ok bool
		if d, ok = sm.opened[domain.Crunch(source)]; !ok {
			return nil
		}
	}
	out := make([]driven.Source, len(d.children))
	for i, c := range d.children {
		out[i] = c.source
	}
	return out
}

// Parent returns the Source source is registered under, or nil.
func (sm *StateManager) Parent(source driven.Source) driven.Source {
	d, ok := sm.opened[domain.Crunch(source)]
	if !ok || d.parent == nil {
		return nil
	}
	return d.parent.source
}

func (sm *StateManager) descriptor(source driven.Source) *descriptor {
	key := domain.Crunch(source)
	d, ok := sm.opened[key]
	if !ok {
		d = &descriptor{source: source, parent: sm.top}
		sm.opened[key] = d
	}
	return d
}

func (sm *StateManager) reparent(child, parent *descriptor) {
	if child.parent != nil {
		child.parent.removeChild(child)
	}
	// Reparenting to the root would discard a known complete path.
	if parent != sm.top {
		child.parent = parent
	}
	child.parent.children = append(child.parent.children, child)

	if sm.width > 0 && len(child.parent.children) > sm.width {
		lru := child.parent.children[0]
		smLog.Debug("evicting %s", domain.Crunch(lru.source))
		sm.Close(lru.source)
	}

	// Mark every ancestor as most recently used too.
	if parent.parent != nil {
		sm.reparent(parent, parent.parent)
	}
}

// registerPath registers the opening stack, innermost open first, so that
// each Source sits below the one opened inside it.
func (sm *StateManager) registerPath(path []driven.Source) {
	parent := sm.top
	for i := len(path) - 1; i >= 0; i-- {
		child := sm.descriptor(path[i])
		sm.reparent(child, parent)
		parent = child
	}
}

// Open returns the cookie for source, acquiring it on first use. If
// acquisition fails the partially opened Source is closed and the error
// returned.
func (sm *StateManager) Open(ctx context.Context, source driven.Source) (any, error) {
	sm.opening = append(sm.opening, source)
	defer func() {
		sm.opening = sm.opening[:len(sm.opening)-1]
	}()
	sm.registerPath(sm.opening)

	d := sm.descriptor(source)
	if !d.acquired {
		cookie, release, err := source.Acquire(ctx, sm)
		if err != nil {
			sm.Close(source)
			return nil, err
		}
		d.cookie, d.release, d.acquired = cookie, release, true
	}
	smLog.Debug("open %s", domain.Crunch(source))
	return d.cookie, nil
}

// Close releases source after closing every Source that depends on it.
// Finaliser errors are logged, not returned. Closing a Source that is not
// open does nothing.
func (sm *StateManager) Close(source driven.Source) {
	key := domain.Crunch(source)
	d, ok := sm.opened[key]
	if !ok {
		return
	}
	smLog.Debug("close %s", key)

	for _, c := range slices.Clone(d.children) {
		sm.Close(c.source)
	}
	d.children = nil

	if d.acquired {
		d.cookie, d.acquired = nil, false
		if d.release != nil {
			if err := d.release(); err != nil {
				smLog.Error("releasing %s: %v", d.source.Type(), err)
			}
			d.release = nil
		}
	}

	if d.parent != nil {
		d.parent.removeChild(d)
	}
	delete(sm.opened, key)
}

// Clear closes every open Source.
func (sm *StateManager) Clear() {
	smLog.Debug("clear")
	for _, c := range slices.Clone(sm.top.children) {
		sm.Close(c.source)
	}
}

// ClearDependents closes everything below the top-level Sources, keeping
// the top-level Sources themselves open.
func (sm *StateManager) ClearDependents() {
	smLog.Debug("clear dependents")
	for _, c := range slices.Clone(sm.top.children) {
		for _, sc := range slices.Clone(c.children) {
			sm.Close(sc.source)
		}
	}
}
