package scheduling

import (
	"github.com/google/uuid"
	"github.com/kinhub/kinhub-server/store"
)

// ConflictMap maps an event id to the ids of all events it conflicts with.
// The map is symmetric: if a is listed for b, then b is listed for a. Events
// without conflicts do not appear at all.
type ConflictMap map[uuid.UUID][]uuid.UUID

// Entries returns the total number of conflicting pairs in the map.
func (m ConflictMap) Entries() int {
	total := 0
	for _, conflictingIDs := range m {
		total += len(conflictingIDs)
	}
	return total / 2
}

// Detector finds scheduling conflicts between events assigned to the same
// user. It is pure and safe for concurrent use.
type Detector struct {
	// resolver computes the effective intervals being compared.
	resolver *Resolver
}

// NewDetector creates a new Detector that resolves effective intervals using
// the given Resolver.
func NewDetector(resolver *Resolver) *Detector {
	return &Detector{resolver: resolver}
}

// Conflicts builds the ConflictMap for the given events. Events are grouped
// by their assignee, and unassigned events never conflict with anything.
// Within each group, every unordered pair is tested for overlapping or
// touching effective intervals.
//
// The map is always recomputed from scratch, so callers pass the latest
// known event collection instead of patching earlier results. The pair test
// is quadratic per assignee group, which is fine for the schedule sizes of a
// single family. Should that ever change, sweep over the events ordered by
// effective start instead, but keep the closed-interval overlap semantics
// and the symmetry of the result.
func (d *Detector) Conflicts(events []store.Event) ConflictMap {
	conflicts := make(ConflictMap)
	// Group by assignee, discarding unassigned events.
	eventsByAssignee := make(map[uuid.UUID][]store.Event)
	for _, event := range events {
		if !event.AssignedTo.Valid {
			continue
		}
		eventsByAssignee[event.AssignedTo.UUID] = append(eventsByAssignee[event.AssignedTo.UUID], event)
	}
	// Test all pairs per group.
	for _, assigneeEvents := range eventsByAssignee {
		intervals := make([]Interval, 0, len(assigneeEvents))
		for _, event := range assigneeEvents {
			intervals = append(intervals, d.resolver.EffectiveInterval(event))
		}
		for i, eventA := range assigneeEvents {
			for j := i + 1; j < len(assigneeEvents); j++ {
				if !intervals[i].OverlapsOrTouches(intervals[j]) {
					continue
				}
				eventB := assigneeEvents[j]
				conflicts[eventA.ID] = append(conflicts[eventA.ID], eventB.ID)
				conflicts[eventB.ID] = append(conflicts[eventB.ID], eventA.ID)
			}
		}
	}
	return conflicts
}

// ConflictingWith returns the events from the given collection whose effective
// intervals overlap or touch the one of the given event. A stored copy of the
// event itself is skipped by id. Unlike Conflicts, assignees are not
// inspected, so callers pass a collection that is already limited to a single
// schedule. The interval of the given event is resolved from its current
// state. Travel margins of an event that still awaits assignment therefore
// count against that schedule.
func (d *Detector) ConflictingWith(e store.Event, events []store.Event) []store.Event {
	interval := d.resolver.EffectiveInterval(e)
	conflicting := make([]store.Event, 0)
	for _, other := range events {
		if other.ID == e.ID {
			continue
		}
		if !interval.OverlapsOrTouches(d.resolver.EffectiveInterval(other)) {
			continue
		}
		conflicting = append(conflicting, other)
	}
	return conflicting
}
