// Package state holds the dashboard's UI state: what the upstream channel last
// told us about taxis, demand clusters and dispatch assignments.
//
// Each slice carries a revision that changes only when the slice is replaced
// with different content, so replaying a message never disturbs overlays.
package state

import (
	"maps"
	"slices"

	"baechamap/internal/model"
)

// State is owned by a single goroutine.
type State struct {
	rev uint64

	connected bool

	taxis    []model.Taxi
	taxisRev uint64

	clusters    model.Clusters
	clustersRev uint64

	assignments    model.Assignments
	reasons        map[string]string
	targets        map[string]model.RawCoords
	assignmentsRev uint64

	dispatchSucceeded bool
}

func New() *State {
	return &State{
		taxis:       []model.Taxi{},
		clusters:    model.Clusters{},
		assignments: model.Assignments{},
		reasons:     map[string]string{},
		targets:     map[string]model.RawCoords{},
	}
}

func (s *State) bump() uint64 {
	s.rev++
	return s.rev
}

// SetConnected updates the connectivity flag and reports whether it changed.
func (s *State) SetConnected(v bool) bool {
	if s.connected == v {
		return false
	}
	s.connected = v
	return true
}

// ReplaceTaxis swaps the taxi list wholesale.
func (s *State) ReplaceTaxis(taxis []model.Taxi) bool {
	if slices.Equal(s.taxis, taxis) {
		return false
	}
	s.taxis = slices.Clone(taxis)
	if s.taxis == nil {
		s.taxis = []model.Taxi{}
	}
	s.taxisRev = s.bump()
	return true
}

// ReplaceClusters swaps the cluster mapping wholesale.
func (s *State) ReplaceClusters(clusters model.Clusters) bool {
	if maps.Equal(s.clusters, clusters) {
		return false
	}
	s.clusters = maps.Clone(clusters)
	if s.clusters == nil {
		s.clusters = model.Clusters{}
	}
	s.clustersRev = s.bump()
	return true
}

// ApplyBaecha keeps only the dispatched taxis and rebuilds the assignment
// mapping, reasons and target coordinates from the result. It reports false
// when the result repeats what is already applied.
func (s *State) ApplyBaecha(r model.BaechaResult) bool {
	changed := s.ReplaceTaxis(r.Taxis())
	next, reasons := r.Assignments(), r.Reasons()
	targets := maps.Clone(r.Clusters)
	if targets == nil {
		targets = map[string]model.RawCoords{}
	}
	if !maps.Equal(s.assignments, next) || !maps.Equal(s.reasons, reasons) || !maps.Equal(s.targets, targets) {
		s.assignments, s.reasons, s.targets = next, reasons, targets
		s.assignmentsRev = s.bump()
		changed = true
	}
	return changed
}

// CancelAssignment drops one taxi's assignment.
func (s *State) CancelAssignment(taxiID string) bool {
	if _, ok := s.assignments[taxiID]; !ok {
		return false
	}
	s.assignments = maps.Clone(s.assignments)
	delete(s.assignments, taxiID)
	s.reasons = maps.Clone(s.reasons)
	delete(s.reasons, taxiID)
	s.assignmentsRev = s.bump()
	return true
}

// SetDispatchSucceeded updates the one-shot success flag and reports whether
// it changed.
func (s *State) SetDispatchSucceeded(v bool) bool {
	if s.dispatchSucceeded == v {
		return false
	}
	s.dispatchSucceeded = v
	return true
}

// View is a read-only look at the current state. Slices and maps are shared
// with the State and must not be modified.
type View struct {
	Connected         bool
	DispatchSucceeded bool

	Taxis    []model.Taxi
	TaxisRev uint64

	Clusters    model.Clusters
	ClustersRev uint64

	Assignments model.Assignments
	// Reasons and Targets come from the last dispatch result and move with
	// AssignmentsRev.
	Reasons        map[string]string
	Targets        map[string]model.RawCoords
	AssignmentsRev uint64
}

func (s *State) View() View {
	return View{
		Connected:         s.connected,
		DispatchSucceeded: s.dispatchSucceeded,
		Taxis:             s.taxis,
		TaxisRev:          s.taxisRev,
		Clusters:          s.clusters,
		ClustersRev:       s.clustersRev,
		Assignments:       s.assignments,
		Reasons:           s.reasons,
		Targets:           s.targets,
		AssignmentsRev:    s.assignmentsRev,
	}
}

// Status is the readout shown next to the map.
type Status struct {
	Connected         bool `json:"connected"`
	DispatchSucceeded bool `json:"dispatchSucceeded"`
	Taxis             int  `json:"taxis"`
	Clusters          int  `json:"clusters"`
	Assignments       int  `json:"assignments"`
	// Reasons maps each assigned taxi to the reason the backend gave.
	Reasons map[string]string `json:"reasons"`
}

func (v View) Status() Status {
	return Status{
		Connected:         v.Connected,
		DispatchSucceeded: v.DispatchSucceeded,
		Taxis:             len(v.Taxis),
		Clusters:          len(v.Clusters),
		Assignments:       len(v.Assignments),
		Reasons:           maps.Clone(v.Reasons),
	}
}
