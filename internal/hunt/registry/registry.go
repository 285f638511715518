// Package registry holds the candidate id sets the hunt is working through.
//
// A Registry is replaced wholesale by the remote wanted list and mutated in
// place as trials resolve. Every read and write goes through one RWMutex so a
// refresh can never interleave with a demotion.
package registry

import (
	"sync"

	"nihhunt.ai/internal/protocol"
)

type idSet map[int]struct{}

func newIDSet(ids []int) idSet {
	s := make(idSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s idSet) has(id int) bool {
	_, ok := s[id]
	return ok
}

// Snapshot is a full set of candidates, typically one wanted-list response.
type Snapshot struct {
	Confirmed    map[EntityType][]int
	Unsure       map[EntityType][]int
	AllowedTools []int
}

// SnapshotFromWanted maps the collector payload onto a Snapshot.
func SnapshotFromWanted(m protocol.WantedMsg) Snapshot {
	return Snapshot{
		Confirmed: map[EntityType][]int{
			Object: m.ObjectIDs,
			NPC:    m.NPCIDs,
			Item:   m.ItemIDs,
		},
		Unsure: map[EntityType][]int{
			Object: m.UnsureObjectIDs,
			NPC:    m.UnsureNPCIDs,
			Item:   m.UnsureItemIDs,
		},
		AllowedTools: m.AllowedItemIDs,
	}
}

// Demoter removes an id from the confirmed set of its type.
type Demoter interface {
	Demote(t EntityType, id int)
}

// Reconciler replays locally resolved ids against a registry.
type Reconciler interface {
	Reconcile(d Demoter)
}

type Registry struct {
	mu           sync.RWMutex
	confirmed    map[EntityType]idSet
	unsure       map[EntityType]idSet
	allowedTools idSet
	version      uint64
}

func New() *Registry {
	r := &Registry{}
	r.resetLocked(Snapshot{})
	return r
}

func (r *Registry) resetLocked(s Snapshot) {
	r.confirmed = make(map[EntityType]idSet, len(entityTypes))
	r.unsure = make(map[EntityType]idSet, len(entityTypes))
	for _, t := range entityTypes {
		r.confirmed[t] = newIDSet(s.Confirmed[t])
		r.unsure[t] = newIDSet(s.Unsure[t])
	}
	r.allowedTools = newIDSet(s.AllowedTools)
	r.version++
}

// Replace swaps every set for the contents of s.
func (r *Registry) Replace(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(s)
}

// ReplaceAndReconcile replaces the registry and then lets rec demote every id
// it already resolved, all inside one critical section.
func (r *Registry) ReplaceAndReconcile(s Snapshot, rec Reconciler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked(s)
	if rec != nil {
		rec.Reconcile(lockedDemoter{r})
	}
}

// lockedDemoter demotes on a registry whose lock is already held.
type lockedDemoter struct{ r *Registry }

func (d lockedDemoter) Demote(t EntityType, id int) { d.r.demoteLocked(t, id) }

func (r *Registry) IsConfirmed(t EntityType, id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.confirmed[t].has(id)
}

func (r *Registry) IsUnsure(t EntityType, id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unsure[t].has(id)
}

func (r *Registry) IsAllowedTool(itemID int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.allowedTools.has(itemID)
}

// Demote removes id from the confirmed set: the collector now knows the answer.
func (r *Registry) Demote(t EntityType, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.demoteLocked(t, id)
}

func (r *Registry) demoteLocked(t EntityType, id int) {
	if s := r.confirmed[t]; s != nil {
		delete(s, id)
	}
}

// MarkUnsure adds id to the unsure set. It stays confirmed so it can be retried.
func (r *Registry) MarkUnsure(t EntityType, id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.unsure[t]; s != nil {
		s[id] = struct{}{}
	}
}

type Counts struct {
	Confirmed    map[EntityType]int
	Unsure       map[EntityType]int
	AllowedTools int
	Version      uint64
}

func (r *Registry) Counts() Counts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := Counts{
		Confirmed:    make(map[EntityType]int, len(entityTypes)),
		Unsure:       make(map[EntityType]int, len(entityTypes)),
		AllowedTools: len(r.allowedTools),
		Version:      r.version,
	}
	for _, t := range entityTypes {
		c.Confirmed[t] = len(r.confirmed[t])
		c.Unsure[t] = len(r.unsure[t])
	}
	return c
}
