package assignsvc

import (
	"context"
	"github.com/google/uuid"
	"github.com/kinhub/kinhub-server/conflictsvc"
	"github.com/kinhub/kinhub-server/errors"
	"github.com/kinhub/kinhub-server/event"
	"github.com/kinhub/kinhub-server/portal"
	"github.com/kinhub/kinhub-server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"sync"
	"testing"
	"time"
)

const timeout = 3 * time.Second

// storeStub mocks Store.
type storeStub struct {
	mock.Mock
}

func (stub *storeStub) AssignEvent(ctx context.Context, assignment store.Assignment) (store.Event, error) {
	args := stub.Called(ctx, assignment)
	return args.Get(0).(store.Event), args.Error(1)
}

func (stub *storeStub) UserByID(ctx context.Context, userID uuid.UUID) (store.User, error) {
	args := stub.Called(ctx, userID)
	return args.Get(0).(store.User), args.Error(1)
}

// conflictCheckerStub mocks ConflictChecker.
type conflictCheckerStub struct {
	mock.Mock
}

func (stub *conflictCheckerStub) CheckAssignment(ctx context.Context, eventID uuid.UUID, candidateUserID uuid.UUID) (conflictsvc.AssignmentCheck, error) {
	args := stub.Called(ctx, eventID, candidateUserID)
	return args.Get(0).(conflictsvc.AssignmentCheck), args.Error(1)
}

func TestNew(t *testing.T) {
	logger := zap.New(zapcore.NewNopCore())
	portalStub := &portal.Stub{}
	storeStub := &storeStub{}
	checkerStub := &conflictCheckerStub{}
	s := New(logger, portalStub, storeStub, checkerStub)
	require.NotNil(t, s, "should not be nil")
	assert.Equal(t, logger, s.logger, "should set correct logger")
	assert.Equal(t, portalStub, s.portal, "should set correct portal")
	assert.Equal(t, storeStub, s.store, "should set correct store")
	assert.Equal(t, checkerStub, s.conflictChecker, "should set correct conflict checker")
}

// assignmentServiceSuite tests AssignmentService.
type assignmentServiceSuite struct {
	suite.Suite
	portalStub  *portal.Stub
	storeStub   *storeStub
	checkerStub *conflictCheckerStub
	service     *AssignmentService
	// request is a valid sample AssignmentRequest with a target user.
	request AssignmentRequest
	// updatedEvent is the sample event as the store returns it after commit.
	updatedEvent store.Event
}

func (suite *assignmentServiceSuite) SetupTest() {
	suite.portalStub = &portal.Stub{}
	suite.storeStub = &storeStub{}
	suite.checkerStub = &conflictCheckerStub{}
	suite.service = New(zap.New(zapcore.NewNopCore()), suite.portalStub, suite.storeStub, suite.checkerStub)
	suite.request = AssignmentRequest{
		EventID:         uuid.New(),
		TargetUserID:    uuid.NullUUID{UUID: uuid.New(), Valid: true},
		ExpectedVersion: 4,
	}
	suite.updatedEvent = store.Event{
		ID:         suite.request.EventID,
		Calendar:   "family",
		Title:      "soccer practice",
		StartTime:  time.UnixMilli(40000),
		EndTime:    time.UnixMilli(80000),
		AssignedTo: suite.request.TargetUserID,
		Version:    5,
	}
}

// expectCommit sets up the store and portal stubs for a successful commit of
// the suite request.
func (suite *assignmentServiceSuite) expectCommit() {
	suite.storeStub.On("AssignEvent", mock.Anything, store.Assignment{
		EventID:         suite.request.EventID,
		AssignedTo:      suite.request.TargetUserID,
		ExpectedVersion: suite.request.ExpectedVersion,
	}).Return(suite.updatedEvent, nil).Once()
	suite.portalStub.On("Publish", mock.Anything, topicAssignmentApplied, event.AssignmentAppliedEvent{
		EventID:    suite.updatedEvent.ID,
		AssignedTo: suite.updatedEvent.AssignedTo,
		Version:    suite.updatedEvent.Version,
	}).Once()
	suite.portalStub.On("Publish", mock.Anything, topicEventsChanged, event.EventsChangedEvent{
		EventIDs: []uuid.UUID{suite.updatedEvent.ID},
	}).Once()
}

// expectTargetUser lets the store find the target user of the suite request.
func (suite *assignmentServiceSuite) expectTargetUser() {
	suite.storeStub.On("UserByID", mock.Anything, suite.request.TargetUserID.UUID).
		Return(store.User{ID: suite.request.TargetUserID.UUID, Name: "dana"}, nil)
}

// parkRequest lets Begin find conflicts so that the suite request gets parked
// behind a confirmation ticket.
func (suite *assignmentServiceSuite) parkRequest(conflicts []store.Event) Outcome {
	suite.expectTargetUser()
	suite.checkerStub.On("CheckAssignment", mock.Anything, suite.request.EventID, suite.request.TargetUserID.UUID).
		Return(conflictsvc.AssignmentCheck{HasConflicts: true, Conflicts: conflicts}, nil).Once()
	outcome, err := suite.service.Begin(context.Background(), suite.request)
	suite.Require().Nil(err, "begin should not fail")
	suite.Require().False(outcome.Committed, "begin should not commit")
	return outcome
}

// TestBeginMissingEventID assures that a request without event id is rejected.
func (suite *assignmentServiceSuite) TestBeginMissingEventID() {
	suite.request.EventID = uuid.Nil
	_, err := suite.service.Begin(context.Background(), suite.request)
	suite.Require().NotNil(err, "should fail")
	e, _ := errors.Cast(err)
	suite.Equal(errors.ErrBadRequest, e.Code, "should fail with bad request")
	suite.Equal(errors.KindMissingID, e.Kind, "should fail because of missing id")
	suite.Empty(suite.checkerStub.Calls, "should not check for conflicts")
	suite.Empty(suite.storeStub.Calls, "should not touch the store")
}

// TestBeginNonPositiveExpectedVersion assures that a request without a
// positive expected version is rejected.
func (suite *assignmentServiceSuite) TestBeginNonPositiveExpectedVersion() {
	suite.request.ExpectedVersion = 0
	_, err := suite.service.Begin(context.Background(), suite.request)
	suite.Require().NotNil(err, "should fail")
	e, _ := errors.Cast(err)
	suite.Equal(errors.ErrBadRequest, e.Code, "should fail with bad request")
	suite.Equal(errors.KindInvalidAssignmentRequest, e.Kind, "should fail because of invalid request")
	suite.Empty(suite.checkerStub.Calls, "should not check for conflicts")
	suite.Empty(suite.storeStub.Calls, "should not touch the store")
}

// TestBeginCommitsClearingWithoutConflictCheck assures that clearing the
// assignee commits right away without any conflict check.
func (suite *assignmentServiceSuite) TestBeginCommitsClearingWithoutConflictCheck() {
	suite.request.TargetUserID = uuid.NullUUID{}
	suite.updatedEvent.AssignedTo = uuid.NullUUID{}
	suite.expectCommit()
	defer suite.storeStub.AssertExpectations(suite.T())
	defer suite.portalStub.AssertExpectations(suite.T())
	outcome, err := suite.service.Begin(context.Background(), suite.request)
	suite.Require().Nil(err, "should not fail")
	suite.True(outcome.Committed, "should commit right away")
	suite.Equal(suite.updatedEvent, outcome.UpdatedEvent, "should return the updated event")
	suite.Empty(suite.checkerStub.Calls, "should not check for conflicts")
	suite.Empty(suite.service.attemptStateByEvent, "should release the event")
}

// TestBeginUnknownTargetUser assures that assigning to an unknown user is
// rejected before any conflict check.
func (suite *assignmentServiceSuite) TestBeginUnknownTargetUser() {
	suite.storeStub.On("UserByID", mock.Anything, suite.request.TargetUserID.UUID).
		Return(store.User{}, errors.NewResourceNotFoundError("user not found", errors.Details{
			"user": suite.request.TargetUserID.UUID,
		})).Once()
	defer suite.storeStub.AssertExpectations(suite.T())
	_, err := suite.service.Begin(context.Background(), suite.request)
	suite.Require().NotNil(err, "should fail")
	e, _ := errors.Cast(err)
	suite.Equal(errors.ErrNotFound, e.Code, "should fail with not found")
	suite.Equal(errors.KindUnknownUser, e.Kind, "should fail because of unknown user")
	suite.Empty(suite.checkerStub.Calls, "should not check for conflicts")
	suite.Len(suite.storeStub.Calls, 1, "should only look up the target user")
	suite.Empty(suite.service.attemptStateByEvent, "should release the event")
}

// TestBeginCommitsWithoutConflicts assures that an assignment without found
// conflicts is committed right away.
func (suite *assignmentServiceSuite) TestBeginCommitsWithoutConflicts() {
	suite.expectTargetUser()
	suite.checkerStub.On("CheckAssignment", mock.Anything, suite.request.EventID, suite.request.TargetUserID.UUID).
		Return(conflictsvc.AssignmentCheck{}, nil).Once()
	suite.expectCommit()
	defer suite.checkerStub.AssertExpectations(suite.T())
	defer suite.storeStub.AssertExpectations(suite.T())
	defer suite.portalStub.AssertExpectations(suite.T())
	outcome, err := suite.service.Begin(context.Background(), suite.request)
	suite.Require().Nil(err, "should not fail")
	suite.True(outcome.Committed, "should commit right away")
	suite.Equal(suite.updatedEvent, outcome.UpdatedEvent, "should return the updated event")
	suite.Empty(suite.service.attemptStateByEvent, "should release the event")
}

// TestBeginAbortsOnConflictCheckFailure assures that an assignment is aborted
// without commit when the conflict check fails.
func (suite *assignmentServiceSuite) TestBeginAbortsOnConflictCheckFailure() {
	suite.expectTargetUser()
	suite.checkerStub.On("CheckAssignment", mock.Anything, suite.request.EventID, suite.request.TargetUserID.UUID).
		Return(conflictsvc.AssignmentCheck{}, errors.NewInternalError("sad life", nil)).Once()
	defer suite.checkerStub.AssertExpectations(suite.T())
	outcome, err := suite.service.Begin(context.Background(), suite.request)
	suite.Require().NotNil(err, "should fail")
	e, _ := errors.Cast(err)
	suite.Equal(errors.ErrCommunication, e.Code, "should fail with communication error")
	suite.Equal(errors.KindConflictCheckFailed, e.Kind, "should fail because of failed conflict check")
	suite.False(outcome.Committed, "should not commit")
	suite.Len(suite.storeStub.Calls, 1, "should only look up the target user")
	suite.Empty(suite.service.attemptStateByEvent, "should release the event")
}

// TestBeginAwaitsConfirmationOnConflicts assures that found conflicts are not
// committed but handed out with a confirmation ticket.
func (suite *assignmentServiceSuite) TestBeginAwaitsConfirmationOnConflicts() {
	conflicts := []store.Event{
		{
			ID:         uuid.New(),
			Calendar:   "family",
			Title:      "piano lesson",
			StartTime:  time.UnixMilli(50000),
			EndTime:    time.UnixMilli(90000),
			AssignedTo: suite.request.TargetUserID,
			Version:    1,
		},
	}
	outcome := suite.parkRequest(conflicts)
	suite.NotEqual(uuid.Nil, outcome.ConfirmationTicket, "should hand out a confirmation ticket")
	suite.WithinDuration(time.Now().Add(defaultTicketTTL), outcome.TicketExpiresAt, time.Minute,
		"should expire the ticket after the ttl")
	suite.Equal(conflicts, outcome.Conflicts, "should return the found conflicts")
	suite.Len(suite.storeStub.Calls, 1, "should only look up the target user")
	suite.Equal(attemptStateAwaitingConfirmation, suite.service.attemptStateByEvent[suite.request.EventID],
		"should await confirmation for the event")
	suite.Contains(suite.service.ticketsByID, outcome.ConfirmationTicket, "should keep the ticket")
}

// TestBeginRejectsParallelAttempt assures that only a single assignment
// attempt per event runs at a time.
func (suite *assignmentServiceSuite) TestBeginRejectsParallelAttempt() {
	suite.parkRequest(nil)
	_, err := suite.service.Begin(context.Background(), suite.request)
	suite.Require().NotNil(err, "should fail")
	e, _ := errors.Cast(err)
	suite.Equal(errors.ErrBadRequest, e.Code, "should fail with bad request")
	suite.Equal(errors.KindAssignmentInProgress, e.Kind, "should fail because of running attempt")
	suite.Len(suite.storeStub.Calls, 1, "should only look up the target user")
}

// TestBeginIgnoresExpiredTicket assures that an expired confirmation ticket
// does not block new attempts until the next sweep.
func (suite *assignmentServiceSuite) TestBeginIgnoresExpiredTicket() {
	suite.service.ticketTTL = -time.Minute
	suite.parkRequest(nil)
	suite.checkerStub.On("CheckAssignment", mock.Anything, suite.request.EventID, suite.request.TargetUserID.UUID).
		Return(conflictsvc.AssignmentCheck{}, nil).Once()
	suite.expectCommit()
	defer suite.checkerStub.AssertExpectations(suite.T())
	defer suite.storeStub.AssertExpectations(suite.T())
	defer suite.portalStub.AssertExpectations(suite.T())
	outcome, err := suite.service.Begin(context.Background(), suite.request)
	suite.Require().Nil(err, "should not fail")
	suite.True(outcome.Committed, "should commit")
}

// TestBeginVersionMismatch assures that a version change in the store
// surfaces with the authoritative state and releases the event.
func (suite *assignmentServiceSuite) TestBeginVersionMismatch() {
	suite.request.TargetUserID = uuid.NullUUID{}
	currentAssignee := uuid.NullUUID{UUID: uuid.New(), Valid: true}
	currentEvent := suite.updatedEvent
	currentEvent.AssignedTo = currentAssignee
	currentEvent.Version = 9
	suite.storeStub.On("AssignEvent", mock.Anything, mock.Anything).
		Return(currentEvent, errors.NewConcurrentModificationError("event version mismatch", errors.Details{
			"event":               suite.request.EventID,
			"expected_version":    suite.request.ExpectedVersion,
			"current_version":     currentEvent.Version,
			"current_assigned_to": currentAssignee,
		})).Once()
	defer suite.storeStub.AssertExpectations(suite.T())
	outcome, err := suite.service.Begin(context.Background(), suite.request)
	suite.Require().NotNil(err, "should fail")
	e, _ := errors.Cast(err)
	suite.Equal(errors.ErrConcurrentModification, e.Code, "should fail with concurrent modification")
	suite.Equal(currentEvent.Version, e.Details["current_version"], "should carry the authoritative version")
	suite.Equal(currentAssignee, e.Details["current_assigned_to"], "should carry the authoritative assignee")
	suite.False(outcome.Committed, "should not commit")
	suite.Empty(suite.service.attemptStateByEvent, "should release the event")
}

// TestConfirmCommitsOriginalRequest assures that Confirm commits the original
// request from Begin, including its expected version.
func (suite *assignmentServiceSuite) TestConfirmCommitsOriginalRequest() {
	parked := suite.parkRequest(nil)
	suite.expectCommit()
	defer suite.storeStub.AssertExpectations(suite.T())
	defer suite.portalStub.AssertExpectations(suite.T())
	outcome, err := suite.service.Confirm(context.Background(), parked.ConfirmationTicket)
	suite.Require().Nil(err, "should not fail")
	suite.True(outcome.Committed, "should commit")
	suite.Equal(suite.updatedEvent, outcome.UpdatedEvent, "should return the updated event")
	suite.Empty(suite.service.ticketsByID, "should drop the ticket")
	suite.Empty(suite.service.attemptStateByEvent, "should release the event")
}

// TestConfirmUnknownTicket assures that confirming an unknown ticket fails
// without touching the store.
func (suite *assignmentServiceSuite) TestConfirmUnknownTicket() {
	_, err := suite.service.Confirm(context.Background(), uuid.New())
	suite.Require().NotNil(err, "should fail")
	e, _ := errors.Cast(err)
	suite.Equal(errors.ErrNotFound, e.Code, "should fail with not found")
	suite.Equal(errors.KindUnknownConfirmationTicket, e.Kind, "should fail because of unknown ticket")
	suite.Empty(suite.storeStub.Calls, "should not touch the store")
}

// TestConfirmExpiredTicket assures that an expired ticket behaves like an
// unknown one.
func (suite *assignmentServiceSuite) TestConfirmExpiredTicket() {
	suite.service.ticketTTL = -time.Minute
	parked := suite.parkRequest(nil)
	_, err := suite.service.Confirm(context.Background(), parked.ConfirmationTicket)
	suite.Require().NotNil(err, "should fail")
	e, _ := errors.Cast(err)
	suite.Equal(errors.KindUnknownConfirmationTicket, e.Kind, "should fail because of unknown ticket")
	suite.Len(suite.storeStub.Calls, 1, "should only look up the target user")
	suite.Empty(suite.service.attemptStateByEvent, "should release the event")
}

// TestDecline assures that declining drops the pending assignment without
// committing anything.
func (suite *assignmentServiceSuite) TestDecline() {
	parked := suite.parkRequest(nil)
	err := suite.service.Decline(context.Background(), parked.ConfirmationTicket)
	suite.Require().Nil(err, "should not fail")
	suite.Len(suite.storeStub.Calls, 1, "should only look up the target user")
	suite.Empty(suite.service.ticketsByID, "should drop the ticket")
	suite.Empty(suite.service.attemptStateByEvent, "should release the event")
}

// TestDeclineUnknownTicket assures that declining an unknown ticket fails.
func (suite *assignmentServiceSuite) TestDeclineUnknownTicket() {
	err := suite.service.Decline(context.Background(), uuid.New())
	suite.Require().NotNil(err, "should fail")
	e, _ := errors.Cast(err)
	suite.Equal(errors.KindUnknownConfirmationTicket, e.Kind, "should fail because of unknown ticket")
}

// TestDeclineReleasesEvent assures that a declined event accepts new
// assignment attempts.
func (suite *assignmentServiceSuite) TestDeclineReleasesEvent() {
	parked := suite.parkRequest(nil)
	err := suite.service.Decline(context.Background(), parked.ConfirmationTicket)
	suite.Require().Nil(err, "decline should not fail")
	suite.checkerStub.On("CheckAssignment", mock.Anything, suite.request.EventID, suite.request.TargetUserID.UUID).
		Return(conflictsvc.AssignmentCheck{}, nil).Once()
	suite.expectCommit()
	defer suite.checkerStub.AssertExpectations(suite.T())
	defer suite.storeStub.AssertExpectations(suite.T())
	defer suite.portalStub.AssertExpectations(suite.T())
	outcome, err := suite.service.Begin(context.Background(), suite.request)
	suite.Require().Nil(err, "should not fail")
	suite.True(outcome.Committed, "should commit")
}

// TestRemoveExpiredTickets assures that only expired tickets are dropped and
// their events released.
func (suite *assignmentServiceSuite) TestRemoveExpiredTickets() {
	expired := &confirmationTicket{
		id:        uuid.New(),
		request:   suite.request,
		expiresAt: time.Now().Add(-time.Minute),
	}
	pending := &confirmationTicket{
		id:        uuid.New(),
		request:   AssignmentRequest{EventID: uuid.New(), ExpectedVersion: 2},
		expiresAt: time.Now().Add(time.Hour),
	}
	suite.service.ticketsByID[expired.id] = expired
	suite.service.ticketsByID[pending.id] = pending
	suite.service.attemptStateByEvent[expired.request.EventID] = attemptStateAwaitingConfirmation
	suite.service.attemptStateByEvent[pending.request.EventID] = attemptStateAwaitingConfirmation
	suite.service.m.Lock()
	suite.service.removeExpiredTickets(time.Now())
	suite.service.m.Unlock()
	suite.NotContains(suite.service.ticketsByID, expired.id, "should drop the expired ticket")
	suite.Contains(suite.service.ticketsByID, pending.id, "should keep the pending ticket")
	suite.NotContains(suite.service.attemptStateByEvent, expired.request.EventID, "should release the expired event")
	suite.Contains(suite.service.attemptStateByEvent, pending.request.EventID, "should keep the pending event")
}

// TestRunReturnsOnContextDone assures that Run returns when the given context
// is done.
func (suite *assignmentServiceSuite) TestRunReturnsOnContextDone() {
	var wg sync.WaitGroup
	timeout, cancel := context.WithTimeout(context.Background(), timeout)
	runCtx, cancelRun := context.WithCancel(timeout)
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := suite.service.Run(runCtx)
		suite.Nil(err, "should not fail")
	}()
	cancelRun()
	// Await all.
	go func() {
		wg.Wait()
		cancel()
	}()
	<-timeout.Done()
	suite.Equal(context.Canceled, timeout.Err(), "should not time out")
	wg.Wait()
}

func TestAssignmentService(t *testing.T) {
	suite.Run(t, new(assignmentServiceSuite))
}
