package pushsvc

import (
	"context"
	"github.com/kinhub/kinhub-server/errors"
	"github.com/kinhub/kinhub-server/event"
	"github.com/kinhub/kinhub-server/portal"
	"github.com/kinhub/kinhub-server/service"
	"github.com/kinhub/kinhub-server/util"
	"go.uber.org/zap"
	"sync"
)

const (
	// topicEventsChanged is used for notifying about events that were changed in
	// the store.
	topicEventsChanged portal.Topic = "kinhub/calendar/events/changed"
	// topicAssignmentApplied is used for notifying about assignments that were
	// committed to the store.
	topicAssignmentApplied portal.Topic = "kinhub/calendar/assignments/applied"
	// topicConflictResolved is used for notifying about applied conflict
	// resolutions.
	topicConflictResolved portal.Topic = "kinhub/calendar/conflicts/resolved"
	// topicConflictReport is used for published conflict reports.
	topicConflictReport portal.Topic = "kinhub/calendar/conflicts/report"
)

// Message types for pushes to connected clients.
const (
	pushTypeEventsChanged     = "events-changed"
	pushTypeAssignmentApplied = "assignment-applied"
	pushTypeConflictResolved  = "conflict-resolved"
	pushTypeConflictReport    = "conflict-report"
)

// pushMessage is the envelope for messages pushed to connected clients.
type pushMessage struct {
	// Type describes what Payload holds.
	Type string `json:"type"`
	// Payload is the pushed content.
	Payload interface{} `json:"payload"`
}

// Hub broadcasts messages to connected clients.
type Hub interface {
	// Broadcast schedules the given message for sending to all connected
	// clients.
	Broadcast(ctx context.Context, message []byte)
}

// pushService forwards portal announcements to connected websocket clients so
// that they know when to refetch.
type pushService struct {
	logger *zap.Logger
	portal portal.Portal
	// hub for broadcasting to connected clients.
	hub Hub
}

// NewPushService creates a new push service that forwards announcements to
// the given Hub. Run it with service.Service.Run.
func NewPushService(logger *zap.Logger, portal portal.Portal, hub Hub) service.Service {
	return &pushService{
		logger: logger,
		portal: portal,
		hub:    hub,
	}
}

// Run subscribes to all announcement topics and forwards them until the given
// context.Context is done.
func (s *pushService) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	// Forward changed events.
	eventsChangedNewsletter := portal.Subscribe[event.EventsChangedEvent](ctx, s.portal, topicEventsChanged)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range eventsChangedNewsletter.Receive {
			s.push(ctx, pushTypeEventsChanged, e.Payload)
		}
	}()
	// Forward applied assignments.
	assignmentAppliedNewsletter := portal.Subscribe[event.AssignmentAppliedEvent](ctx, s.portal, topicAssignmentApplied)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range assignmentAppliedNewsletter.Receive {
			s.push(ctx, pushTypeAssignmentApplied, e.Payload)
		}
	}()
	// Forward applied conflict resolutions.
	conflictResolvedNewsletter := portal.Subscribe[event.ConflictResolvedEvent](ctx, s.portal, topicConflictResolved)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range conflictResolvedNewsletter.Receive {
			s.push(ctx, pushTypeConflictResolved, e.Payload)
		}
	}()
	// Forward conflict reports.
	conflictReportNewsletter := portal.Subscribe[event.ConflictReportEvent](ctx, s.portal, topicConflictReport)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range conflictReportNewsletter.Receive {
			s.push(ctx, pushTypeConflictReport, e.Payload)
		}
	}()
	wg.Wait()
	return nil
}

// push broadcasts the given payload wrapped in a pushMessage with the given
// type.
func (s *pushService) push(ctx context.Context, messageType string, payload interface{}) {
	message, err := util.EncodeAsJSON(pushMessage{
		Type:    messageType,
		Payload: payload,
	})
	if err != nil {
		errors.Log(s.logger, errors.Wrap(err, "encode push message", errors.Details{"message_type": messageType}))
		return
	}
	s.hub.Broadcast(ctx, message)
}
