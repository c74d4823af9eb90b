package scheduling

import (
	"github.com/gobuffalo/nulls"
	"github.com/google/uuid"
	"github.com/kinhub/kinhub-server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"testing"
)

func TestNewDetector(t *testing.T) {
	d := NewDetector(NewResolver(Config{}))
	require.NotNil(t, d, "detector should exist")
	assert.NotNil(t, d.resolver, "resolver should be set")
}

type DetectorConflictsTestSuite struct {
	suite.Suite
	detector *Detector
}

func (suite *DetectorConflictsTestSuite) SetupTest() {
	suite.detector = NewDetector(NewResolver(Config{}))
}

func (suite *DetectorConflictsTestSuite) TestNoEvents() {
	got := suite.detector.Conflicts(nil)
	suite.Assert().Empty(got, "no events should produce no conflicts")
}

func (suite *DetectorConflictsTestSuite) TestUnassignedNeverConflict() {
	eventA := newTestEvent(testTime(10, 0), testTime(11, 0))
	eventB := newTestEvent(testTime(10, 30), testTime(11, 30))
	got := suite.detector.Conflicts([]store.Event{eventA, eventB})
	suite.Assert().Empty(got, "unassigned events should never conflict")
}

func (suite *DetectorConflictsTestSuite) TestUnassignedNeverListed() {
	assigned := assignTestEvent(newTestEvent(testTime(10, 0), testTime(11, 0)))
	overlappingA := assigned
	overlappingA.ID = uuid.New()
	unassigned := newTestEvent(testTime(10, 0), testTime(11, 0))
	got := suite.detector.Conflicts([]store.Event{assigned, overlappingA, unassigned})
	suite.Require().Contains(got, assigned.ID, "assigned overlapping events should conflict")
	suite.Assert().NotContains(got, unassigned.ID, "unassigned events should not appear as key")
	for _, conflictingIDs := range got {
		suite.Assert().NotContains(conflictingIDs, unassigned.ID, "unassigned events should not appear as value")
	}
}

func (suite *DetectorConflictsTestSuite) TestDifferentAssignees() {
	eventA := assignTestEvent(newTestEvent(testTime(10, 0), testTime(11, 0)))
	eventB := assignTestEvent(newTestEvent(testTime(10, 30), testTime(11, 30)))
	got := suite.detector.Conflicts([]store.Event{eventA, eventB})
	suite.Assert().Empty(got, "events of different assignees should not conflict")
}

func (suite *DetectorConflictsTestSuite) TestOverlappingSameAssignee() {
	eventA := assignTestEvent(newTestEvent(testTime(10, 0), testTime(11, 30)))
	eventB := newTestEvent(testTime(11, 0), testTime(12, 0))
	eventB.AssignedTo = eventA.AssignedTo
	got := suite.detector.Conflicts([]store.Event{eventA, eventB})
	want := ConflictMap{
		eventA.ID: {eventB.ID},
		eventB.ID: {eventA.ID},
	}
	suite.Assert().Equal(want, got, "overlapping events of the same assignee should conflict")
}

func (suite *DetectorConflictsTestSuite) TestTouchingIntervals() {
	eventA := assignTestEvent(newTestEvent(testTime(10, 0), testTime(11, 0)))
	eventB := newTestEvent(testTime(11, 0), testTime(12, 0))
	eventB.AssignedTo = eventA.AssignedTo
	got := suite.detector.Conflicts([]store.Event{eventA, eventB})
	suite.Assert().Contains(got, eventA.ID, "touching intervals should conflict")
	suite.Assert().Contains(got, eventB.ID, "touching intervals should conflict")
}

func (suite *DetectorConflictsTestSuite) TestGapDoesNotConflict() {
	eventA := assignTestEvent(newTestEvent(testTime(10, 0), testTime(11, 0)))
	eventB := newTestEvent(testTime(11, 1), testTime(12, 0))
	eventB.AssignedTo = eventA.AssignedTo
	got := suite.detector.Conflicts([]store.Event{eventA, eventB})
	suite.Assert().Empty(got, "a gap of one minute should not conflict")
}

func (suite *DetectorConflictsTestSuite) TestChainedOverlaps() {
	eventA := assignTestEvent(newTestEvent(testTime(9, 0), testTime(10, 0)))
	eventB := newTestEvent(testTime(9, 30), testTime(10, 30))
	eventB.AssignedTo = eventA.AssignedTo
	eventC := newTestEvent(testTime(10, 15), testTime(11, 0))
	eventC.AssignedTo = eventA.AssignedTo
	got := suite.detector.Conflicts([]store.Event{eventA, eventB, eventC})
	want := ConflictMap{
		eventA.ID: {eventB.ID},
		eventB.ID: {eventA.ID, eventC.ID},
		eventC.ID: {eventB.ID},
	}
	suite.Assert().Equal(want, got, "only chained pairs should conflict")
}

func (suite *DetectorConflictsTestSuite) TestSymmetry() {
	assignee := uuid.NullUUID{UUID: uuid.New(), Valid: true}
	otherAssignee := uuid.NullUUID{UUID: uuid.New(), Valid: true}
	events := []store.Event{
		newTestEvent(testTime(9, 0), testTime(10, 0)),
		newTestEvent(testTime(9, 30), testTime(10, 30)),
		newTestEvent(testTime(10, 0), testTime(11, 0)),
		newTestEvent(testTime(12, 0), testTime(13, 0)),
	}
	for i := range events {
		events[i].AssignedTo = assignee
	}
	otherEvent := newTestEvent(testTime(9, 0), testTime(13, 0))
	otherEvent.AssignedTo = otherAssignee
	events = append(events, otherEvent)
	got := suite.detector.Conflicts(events)
	suite.Require().NotEmpty(got, "conflicts should be found")
	for eventID, conflictingIDs := range got {
		for _, conflictingID := range conflictingIDs {
			suite.Assert().Contains(got[conflictingID], eventID, "conflict map should be symmetric")
		}
	}
}

func (suite *DetectorConflictsTestSuite) TestTravelBufferOverlap() {
	eventA := assignTestEvent(newTestEvent(testTime(9, 0), testTime(10, 0)))
	eventA.SupplementalEvents = []store.SupplementalEvent{
		{Type: store.SupplementalEventTypeDeparture, StartTime: testTime(8, 30), EndTime: testTime(9, 0)},
		{Type: store.SupplementalEventTypeReturn, StartTime: testTime(10, 0), EndTime: testTime(10, 30)},
	}
	eventB := newTestEvent(testTime(10, 15), testTime(11, 0))
	eventB.AssignedTo = eventA.AssignedTo
	got := suite.detector.Conflicts([]store.Event{eventA, eventB})
	want := ConflictMap{
		eventA.ID: {eventB.ID},
		eventB.ID: {eventA.ID},
	}
	suite.Assert().Equal(want, got, "return travel should extend the window into the next event")
}

func (suite *DetectorConflictsTestSuite) TestRecomputedFromScratch() {
	eventA := assignTestEvent(newTestEvent(testTime(10, 0), testTime(11, 0)))
	eventB := newTestEvent(testTime(10, 30), testTime(11, 30))
	eventB.AssignedTo = eventA.AssignedTo
	got := suite.detector.Conflicts([]store.Event{eventA, eventB})
	suite.Require().NotEmpty(got, "conflicts should be found")
	// Move the second event out of the way and recompute.
	eventB.StartTime = testTime(14, 0)
	eventB.EndTime = testTime(15, 0)
	got = suite.detector.Conflicts([]store.Event{eventA, eventB})
	suite.Assert().Empty(got, "recomputation should not remember old conflicts")
}

func (suite *DetectorConflictsTestSuite) TestEntries() {
	eventA := assignTestEvent(newTestEvent(testTime(9, 0), testTime(10, 0)))
	eventB := newTestEvent(testTime(9, 30), testTime(10, 30))
	eventB.AssignedTo = eventA.AssignedTo
	eventC := newTestEvent(testTime(10, 15), testTime(11, 0))
	eventC.AssignedTo = eventA.AssignedTo
	got := suite.detector.Conflicts([]store.Event{eventA, eventB, eventC})
	suite.Assert().Equal(2, got.Entries(), "entries should count unordered pairs")
}

func TestDetector_Conflicts(t *testing.T) {
	suite.Run(t, new(DetectorConflictsTestSuite))
}

type DetectorConflictingWithTestSuite struct {
	suite.Suite
	detector *Detector
}

func (suite *DetectorConflictingWithTestSuite) SetupTest() {
	suite.detector = NewDetector(NewResolver(Config{}))
}

func (suite *DetectorConflictingWithTestSuite) TestNoEvents() {
	e := newTestEvent(testTime(10, 0), testTime(11, 0))
	got := suite.detector.ConflictingWith(e, nil)
	suite.Assert().Empty(got, "no events should produce no conflicts")
}

func (suite *DetectorConflictingWithTestSuite) TestOnlyOverlapsReturned() {
	e := newTestEvent(testTime(10, 0), testTime(11, 0))
	overlapping := assignTestEvent(newTestEvent(testTime(10, 30), testTime(11, 30)))
	apart := assignTestEvent(newTestEvent(testTime(14, 0), testTime(15, 0)))
	got := suite.detector.ConflictingWith(e, []store.Event{overlapping, apart})
	suite.Assert().Equal([]store.Event{overlapping}, got, "only overlapping events should be returned")
}

func (suite *DetectorConflictingWithTestSuite) TestSkipsStoredCopy() {
	e := assignTestEvent(newTestEvent(testTime(10, 0), testTime(11, 0)))
	got := suite.detector.ConflictingWith(e, []store.Event{e})
	suite.Assert().Empty(got, "the event should not conflict with its stored copy")
}

func (suite *DetectorConflictingWithTestSuite) TestAppliesTravelMargins() {
	e := newTestEvent(testTime(10, 0), testTime(11, 0))
	e.Location = nulls.NewString("sports ground")
	// Gap of 15 minutes, swallowed by the return travel.
	following := assignTestEvent(newTestEvent(testTime(11, 15), testTime(12, 0)))
	got := suite.detector.ConflictingWith(e, []store.Event{following})
	suite.Assert().Equal([]store.Event{following}, got, "travel margins should count against the schedule")
}

func (suite *DetectorConflictingWithTestSuite) TestIgnoresAssignees() {
	e := newTestEvent(testTime(10, 0), testTime(11, 0))
	overlapping := newTestEvent(testTime(10, 30), testTime(11, 30))
	got := suite.detector.ConflictingWith(e, []store.Event{overlapping})
	suite.Assert().Equal([]store.Event{overlapping}, got, "assignees should not be inspected")
}

func TestDetector_ConflictingWith(t *testing.T) {
	suite.Run(t, new(DetectorConflictingWithTestSuite))
}
