package scheduling

import (
	"github.com/kinhub/kinhub-server/store"
	"regexp"
	"strings"
	"time"
)

// DefaultTravelMargin is the margin used by Resolver when no other travel
// margin is configured.
const DefaultTravelMargin = 30 * time.Minute

// Config is the configuration for Resolver.
type Config struct {
	// TravelMargin is the heuristic margin applied to events where travel is
	// expected but neither supplemental events nor a parseable arrival time
	// exist. Defaults to DefaultTravelMargin if not positive.
	TravelMargin time.Duration
}

// Interval is the effective busy interval of an event with travel and
// preparation time folded in. Both bounds are inclusive.
type Interval struct {
	// Start is the effective begin.
	Start time.Time
	// End is the effective end.
	End time.Time
}

// OverlapsOrTouches describes whether the two intervals share at least one
// instant. Intervals are closed, so equal bounds count as overlap, because
// back-to-back commitments leave zero slack for travel.
func (i Interval) OverlapsOrTouches(other Interval) bool {
	return !i.Start.After(other.End) && !i.End.Before(other.Start)
}

// Resolver computes effective busy intervals of events. It is pure and safe
// for concurrent use.
type Resolver struct {
	// travelMargin is the heuristic travel margin from Config.TravelMargin.
	travelMargin time.Duration
}

// NewResolver creates a new Resolver with the given Config.
func NewResolver(config Config) *Resolver {
	travelMargin := config.TravelMargin
	if travelMargin <= 0 {
		travelMargin = DefaultTravelMargin
	}
	return &Resolver{travelMargin: travelMargin}
}

// EffectiveInterval computes the effective busy Interval of the given event.
//
// The effective start is the start of the first departure supplemental event.
// Without one, the start of the first buffer supplemental event is used. If
// neither exists and the event is unassigned but has a location, travel is
// still expected: an arrival time noted in the description is used, and
// without a parseable one, the travel margin is subtracted from the event
// start. Otherwise, the event start is used as is.
//
// The effective end is the end of the first return supplemental event. If
// none exists and travel is expected as above, the travel margin is added to
// the event end. Otherwise, the event end is used as is.
//
// If multiple supplemental events share the same type, the first one in
// source order wins. All-day events are resolved like any other event.
func (r *Resolver) EffectiveInterval(e store.Event) Interval {
	interval := Interval{Start: e.StartTime, End: e.EndTime}
	expectTravel := !e.AssignedTo.Valid && e.Location.Valid && e.Location.String != ""
	// Resolve the effective start.
	if departure, ok := firstSupplementalEventOfType(e.SupplementalEvents, store.SupplementalEventTypeDeparture); ok {
		interval.Start = departure.StartTime
	} else if buffer, ok := firstSupplementalEventOfType(e.SupplementalEvents, store.SupplementalEventTypeBuffer); ok {
		interval.Start = buffer.StartTime
	} else if expectTravel {
		if arrivalTime, ok := parseArrivalTime(e.Description.String, e.StartTime); ok {
			interval.Start = arrivalTime
		} else {
			interval.Start = e.StartTime.Add(-r.travelMargin)
		}
	}
	// Resolve the effective end.
	if returnSupplemental, ok := firstSupplementalEventOfType(e.SupplementalEvents, store.SupplementalEventTypeReturn); ok {
		interval.End = returnSupplemental.EndTime
	} else if expectTravel {
		interval.End = e.EndTime.Add(r.travelMargin)
	}
	return interval
}

// firstSupplementalEventOfType returns the first supplemental event with the
// given type in source order.
func firstSupplementalEventOfType(supplementalEvents []store.SupplementalEvent,
	t store.SupplementalEventType) (store.SupplementalEvent, bool) {
	for _, supplementalEvent := range supplementalEvents {
		if supplementalEvent.Type == t {
			return supplementalEvent, true
		}
	}
	return store.SupplementalEvent{}, false
}

// arrivalTimeRegexp matches arrival time notes like "Arrival Time: 2:30 PM"
// in event descriptions.
var arrivalTimeRegexp = regexp.MustCompile(`(?i)arrival time:\s*(\d{1,2}:\d{2})\s*(am|pm)`)

// parseArrivalTime extracts an arrival time note from the given description
// and anchors it to the calendar date of the given anchor time. The note uses
// the 12-hour clock and is matched case-insensitively. Malformed notes like
// out-of-range hours or minutes never fail hard, they simply report false.
func parseArrivalTime(description string, anchor time.Time) (time.Time, bool) {
	match := arrivalTimeRegexp.FindStringSubmatch(description)
	if match == nil {
		return time.Time{}, false
	}
	clock, err := time.Parse("3:04 PM", match[1]+" "+strings.ToUpper(match[2]))
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(anchor.Year(), anchor.Month(), anchor.Day(),
		clock.Hour(), clock.Minute(), 0, 0, anchor.Location()), true
}
