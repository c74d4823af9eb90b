package scheduling

import (
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/kinhub/kinhub-server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"reflect"
	"testing"
	"time"
)

// testTime returns a time on a fixed day for tests.
func testTime(hour int, minute int) time.Time {
	return time.Date(2022, 3, 14, hour, minute, 0, 0, time.UTC)
}

// newTestEvent creates an unassigned event without location covering the
// given raw interval.
func newTestEvent(start time.Time, end time.Time) store.Event {
	return store.Event{
		ID:        uuid.New(),
		Calendar:  "family",
		Title:     "soccer practice",
		StartTime: start,
		EndTime:   end,
	}
}

// assignTestEvent assigns the given event to a random user.
func assignTestEvent(e store.Event) store.Event {
	e.AssignedTo = uuid.NullUUID{UUID: uuid.New(), Valid: true}
	return e
}

func TestNewResolver(t *testing.T) {
	r := NewResolver(Config{})
	require.NotNil(t, r, "resolver should exist")
	assert.Equal(t, DefaultTravelMargin, r.travelMargin, "travel margin should default")
}

type ResolverEffectiveIntervalTestSuite struct {
	suite.Suite
	resolver *Resolver
}

func (suite *ResolverEffectiveIntervalTestSuite) SetupTest() {
	suite.resolver = NewResolver(Config{})
}

func (suite *ResolverEffectiveIntervalTestSuite) TestAssignedWithoutSupplementalEvents() {
	e := assignTestEvent(newTestEvent(testTime(9, 0), testTime(10, 0)))
	e.Location = nulls.NewString("gym")
	e.Description = nulls.NewString("Arrival Time: 2:30 PM")
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(Interval{Start: e.StartTime, End: e.EndTime}, got,
		"assigned events should keep their raw interval")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestDepartureSupplementalEvent() {
	e := assignTestEvent(newTestEvent(testTime(9, 0), testTime(10, 0)))
	e.SupplementalEvents = []store.SupplementalEvent{
		{Type: store.SupplementalEventTypeDeparture, StartTime: testTime(8, 30), EndTime: testTime(9, 0)},
	}
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(8, 30), got.Start, "departure start should win")
	suite.Assert().Equal(e.EndTime, got.End, "end should stay raw")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestBufferSupplementalEvent() {
	e := assignTestEvent(newTestEvent(testTime(9, 0), testTime(10, 0)))
	e.SupplementalEvents = []store.SupplementalEvent{
		{Type: store.SupplementalEventTypeBuffer, StartTime: testTime(8, 45), EndTime: testTime(9, 0)},
	}
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(8, 45), got.Start, "buffer start should win")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestDeparturePrecedesBuffer() {
	e := assignTestEvent(newTestEvent(testTime(9, 0), testTime(10, 0)))
	e.SupplementalEvents = []store.SupplementalEvent{
		{Type: store.SupplementalEventTypeBuffer, StartTime: testTime(8, 45), EndTime: testTime(9, 0)},
		{Type: store.SupplementalEventTypeDeparture, StartTime: testTime(8, 30), EndTime: testTime(9, 0)},
	}
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(8, 30), got.Start, "departure should take priority over buffer")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestFirstSupplementalEventOfTypeWins() {
	e := assignTestEvent(newTestEvent(testTime(9, 0), testTime(10, 0)))
	e.SupplementalEvents = []store.SupplementalEvent{
		{Type: store.SupplementalEventTypeDeparture, StartTime: testTime(8, 0), EndTime: testTime(9, 0)},
		{Type: store.SupplementalEventTypeDeparture, StartTime: testTime(8, 15), EndTime: testTime(9, 0)},
	}
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(8, 0), got.Start, "first departure in source order should win")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestArrivalTimeAfternoon() {
	e := newTestEvent(testTime(15, 0), testTime(16, 0))
	e.Location = nulls.NewString("school")
	e.Description = nulls.NewString("Arrival Time: 2:30 PM")
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(14, 30), got.Start, "arrival time should anchor to the event date")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestArrivalTimeMidnight() {
	e := newTestEvent(testTime(9, 0), testTime(10, 0))
	e.Location = nulls.NewString("school")
	e.Description = nulls.NewString("Arrival Time: 12:15 AM")
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(0, 15), got.Start, "12 AM should map to hour 0")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestArrivalTimeNoon() {
	e := newTestEvent(testTime(13, 0), testTime(14, 0))
	e.Location = nulls.NewString("school")
	e.Description = nulls.NewString("Arrival Time: 12:05 PM")
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(12, 5), got.Start, "12 PM should stay hour 12")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestArrivalTimeCaseInsensitive() {
	e := newTestEvent(testTime(20, 0), testTime(21, 0))
	e.Location = nulls.NewString("theater")
	e.Description = nulls.NewString("note: arrival time: 7:45 pm, bring snacks")
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(19, 45), got.Start, "arrival time should match case-insensitively")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestMalformedArrivalTimeFallsBack() {
	e := newTestEvent(testTime(9, 0), testTime(10, 0))
	e.Location = nulls.NewString("school")
	e.Description = nulls.NewString("Arrival Time: 25:99 PM")
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(8, 30), got.Start, "malformed arrival time should fall back to the margin")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestAbsentDescriptionFallsBack() {
	e := newTestEvent(testTime(9, 0), testTime(10, 0))
	e.Location = nulls.NewString("school")
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(8, 30), got.Start, "missing description should fall back to the margin")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestNoLocationNoTravel() {
	e := newTestEvent(testTime(9, 0), testTime(10, 0))
	e.Description = nulls.NewString("Arrival Time: 8:00 AM")
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(Interval{Start: e.StartTime, End: e.EndTime}, got,
		"without a location no travel should be expected")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestEmptyLocationNoTravel() {
	e := newTestEvent(testTime(9, 0), testTime(10, 0))
	e.Location = nulls.NewString("")
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(Interval{Start: e.StartTime, End: e.EndTime}, got,
		"an empty location should count as no location")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestReturnSupplementalEvent() {
	e := assignTestEvent(newTestEvent(testTime(9, 0), testTime(10, 0)))
	e.SupplementalEvents = []store.SupplementalEvent{
		{Type: store.SupplementalEventTypeReturn, StartTime: testTime(10, 0), EndTime: testTime(10, 30)},
	}
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(10, 30), got.End, "return end should win")
	suite.Assert().Equal(e.StartTime, got.Start, "start should stay raw")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestEndTravelMargin() {
	e := newTestEvent(testTime(9, 0), testTime(10, 0))
	e.Location = nulls.NewString("school")
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(10, 30), got.End, "end should extend by the margin")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestAllDay() {
	e := newTestEvent(time.Date(2022, 3, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2022, 3, 15, 0, 0, 0, 0, time.UTC))
	e.AllDay = true
	e.Location = nulls.NewString("lake")
	got := suite.resolver.EffectiveInterval(e)
	suite.Assert().Equal(e.StartTime.Add(-DefaultTravelMargin), got.Start, "all-day events should resolve like any other")
	suite.Assert().Equal(e.EndTime.Add(DefaultTravelMargin), got.End, "all-day events should resolve like any other")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestCustomTravelMargin() {
	resolver := NewResolver(Config{TravelMargin: 45 * time.Minute})
	e := newTestEvent(testTime(9, 0), testTime(10, 0))
	e.Location = nulls.NewString("school")
	got := resolver.EffectiveInterval(e)
	suite.Assert().Equal(testTime(8, 15), got.Start, "custom margin should apply to the start")
	suite.Assert().Equal(testTime(10, 45), got.End, "custom margin should apply to the end")
}

func (suite *ResolverEffectiveIntervalTestSuite) TestWindowNeverShrinks() {
	events := make([]store.Event, 0)
	plain := assignTestEvent(newTestEvent(testTime(9, 0), testTime(10, 0)))
	events = append(events, plain)
	withSupplementalEvents := assignTestEvent(newTestEvent(testTime(9, 0), testTime(10, 0)))
	withSupplementalEvents.SupplementalEvents = []store.SupplementalEvent{
		{Type: store.SupplementalEventTypeDeparture, StartTime: testTime(8, 30), EndTime: testTime(9, 0)},
		{Type: store.SupplementalEventTypeReturn, StartTime: testTime(10, 0), EndTime: testTime(10, 30)},
	}
	events = append(events, withSupplementalEvents)
	withArrivalTime := newTestEvent(testTime(9, 0), testTime(10, 0))
	withArrivalTime.Location = nulls.NewString("school")
	withArrivalTime.Description = nulls.NewString("Arrival Time: 8:40 AM")
	events = append(events, withArrivalTime)
	withFallback := newTestEvent(testTime(9, 0), testTime(10, 0))
	withFallback.Location = nulls.NewString("school")
	events = append(events, withFallback)
	for _, e := range events {
		got := suite.resolver.EffectiveInterval(e)
		suite.Assert().False(got.Start.After(e.StartTime), "effective start should never be after the raw start")
		suite.Assert().False(got.End.Before(e.EndTime), "effective end should never be before the raw end")
	}
}

func TestResolver_EffectiveInterval(t *testing.T) {
	suite.Run(t, new(ResolverEffectiveIntervalTestSuite))
}

func TestParseArrivalTime(t *testing.T) {
	anchor := time.Date(2022, 3, 14, 15, 0, 0, 0, time.UTC)
	type args struct {
		description string
	}
	tests := []struct {
		name  string
		args  args
		want  time.Time
		want1 bool
	}{
		{
			name:  "afternoon",
			args:  args{description: "Arrival Time: 2:30 PM"},
			want:  time.Date(2022, 3, 14, 14, 30, 0, 0, time.UTC),
			want1: true,
		},
		{
			name:  "morning",
			args:  args{description: "Arrival Time: 9:05 AM"},
			want:  time.Date(2022, 3, 14, 9, 5, 0, 0, time.UTC),
			want1: true,
		},
		{
			name:  "midnight",
			args:  args{description: "Arrival Time: 12:15 AM"},
			want:  time.Date(2022, 3, 14, 0, 15, 0, 0, time.UTC),
			want1: true,
		},
		{
			name:  "noon",
			args:  args{description: "Arrival Time: 12:00 PM"},
			want:  time.Date(2022, 3, 14, 12, 0, 0, 0, time.UTC),
			want1: true,
		},
		{
			name:  "lower case",
			args:  args{description: "arrival time: 6:05 am"},
			want:  time.Date(2022, 3, 14, 6, 5, 0, 0, time.UTC),
			want1: true,
		},
		{
			name:  "embedded in text",
			args:  args{description: "Carpool with Kim. Arrival Time: 7:50 AM. Bring cleats."},
			want:  time.Date(2022, 3, 14, 7, 50, 0, 0, time.UTC),
			want1: true,
		},
		{
			name:  "no space before meridiem",
			args:  args{description: "Arrival Time: 2:30PM"},
			want:  time.Date(2022, 3, 14, 14, 30, 0, 0, time.UTC),
			want1: true,
		},
		{
			name:  "hour out of range",
			args:  args{description: "Arrival Time: 13:30 PM"},
			want:  time.Time{},
			want1: false,
		},
		{
			name:  "minute out of range",
			args:  args{description: "Arrival Time: 2:75 PM"},
			want:  time.Time{},
			want1: false,
		},
		{
			name:  "missing meridiem",
			args:  args{description: "Arrival Time: 14:30"},
			want:  time.Time{},
			want1: false,
		},
		{
			name:  "no note",
			args:  args{description: "Bring cleats."},
			want:  time.Time{},
			want1: false,
		},
		{
			name:  "empty",
			args:  args{description: ""},
			want:  time.Time{},
			want1: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, got1 := parseArrivalTime(tt.args.description, anchor)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseArrivalTime() got = %v, want %v", got, tt.want)
			}
			if got1 != tt.want1 {
				t.Errorf("parseArrivalTime() got1 = %v, want %v", got1, tt.want1)
			}
		})
	}
}

func TestInterval_OverlapsOrTouches(t *testing.T) {
	type args struct {
		other Interval
	}
	tests := []struct {
		name     string
		interval Interval
		args     args
		want     bool
	}{
		{
			name:     "overlap",
			interval: Interval{Start: testTime(10, 0), End: testTime(11, 30)},
			args:     args{other: Interval{Start: testTime(11, 0), End: testTime(12, 0)}},
			want:     true,
		},
		{
			name:     "touching",
			interval: Interval{Start: testTime(10, 0), End: testTime(11, 0)},
			args:     args{other: Interval{Start: testTime(11, 0), End: testTime(12, 0)}},
			want:     true,
		},
		{
			name:     "touching reversed",
			interval: Interval{Start: testTime(11, 0), End: testTime(12, 0)},
			args:     args{other: Interval{Start: testTime(10, 0), End: testTime(11, 0)}},
			want:     true,
		},
		{
			name:     "contained",
			interval: Interval{Start: testTime(10, 0), End: testTime(13, 0)},
			args:     args{other: Interval{Start: testTime(11, 0), End: testTime(12, 0)}},
			want:     true,
		},
		{
			name:     "gap",
			interval: Interval{Start: testTime(10, 0), End: testTime(11, 0)},
			args:     args{other: Interval{Start: testTime(11, 1), End: testTime(12, 0)}},
			want:     false,
		},
		{
			name:     "gap reversed",
			interval: Interval{Start: testTime(11, 1), End: testTime(12, 0)},
			args:     args{other: Interval{Start: testTime(10, 0), End: testTime(11, 0)}},
			want:     false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.interval.OverlapsOrTouches(tt.args.other); got != tt.want {
				t.Errorf("OverlapsOrTouches() = %v, want %v", got, tt.want)
			}
		})
	}
}
