package logpublishsvc

import (
	"context"
	"github.com/kinhub/kinhub-server/event"
	"github.com/kinhub/kinhub-server/logging"
	"github.com/kinhub/kinhub-server/portal"
	"github.com/kinhub/kinhub-server/service"
	"go.uber.org/zap"
	"time"
)

// topicLogPublish is the topic log entries are mirrored to.
const topicLogPublish portal.Topic = "kinhub/log/next"

// collectDelay is how long to collect further log entries after the first one
// before publishing the batch. This avoids blocking on every log call.
const collectDelay = 100 * time.Millisecond

// logPublishService mirrors log entries from logEntriesIn onto the portal so
// that dashboards can show recent server activity.
type logPublishService struct {
	logger *zap.Logger
	portal portal.Portal
	// logEntriesIn is the channel to read log entries to publish from.
	logEntriesIn <-chan logging.LogEntry
}

// New creates a new log publish service that can be run. The given
// logging.LogEntry channel is the channel log entries will be read from.
func New(logger *zap.Logger, portal portal.Portal, logEntriesIn <-chan logging.LogEntry) service.Service {
	return &logPublishService{
		logger:       logger,
		portal:       portal,
		logEntriesIn: logEntriesIn,
	}
}

// Run the service until the given context.Context is done or the entry channel
// is closed.
func (s *logPublishService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, more := <-s.logEntriesIn:
			if !more {
				return nil
			}
			batch := s.collectBatch(ctx, entry)
			s.publishBatch(ctx, batch)
		}
	}
}

// collectBatch waits for collectDelay and then gathers the given first entry
// along with everything that queued up in the meantime. A done context yields
// an empty batch.
func (s *logPublishService) collectBatch(ctx context.Context, firstEntry logging.LogEntry) []logging.LogEntry {
	select {
	case <-ctx.Done():
		return nil
	case <-time.After(collectDelay):
	}
	batch := []logging.LogEntry{firstEntry}
	for {
		select {
		case entry := <-s.logEntriesIn:
			batch = append(batch, entry)
		default:
			return batch
		}
	}
}

// publishBatch publishes each entry of the given batch to topicLogPublish.
func (s *logPublishService) publishBatch(ctx context.Context, batch []logging.LogEntry) {
	for _, entry := range batch {
		s.portal.Publish(ctx, topicLogPublish, event.LogEntryEvent{
			OccurredAt: entry.Time,
			Level:      entry.Level.String(),
			LoggerName: entry.LoggerName,
			Message:    entry.Message,
			Fields:     entry.Fields,
		})
	}
}
