package app

import (
	"context"
	"github.com/kinhub/kinhub-server/assignsvc"
	"github.com/kinhub/kinhub-server/conflictsvc"
	"github.com/kinhub/kinhub-server/debugstatssvc"
	"github.com/kinhub/kinhub-server/devicesvc"
	"github.com/kinhub/kinhub-server/errors"
	"github.com/kinhub/kinhub-server/logging"
	"github.com/kinhub/kinhub-server/logpublishsvc"
	"github.com/kinhub/kinhub-server/portal"
	"github.com/kinhub/kinhub-server/pushsvc"
	"github.com/kinhub/kinhub-server/scheduling"
	"github.com/kinhub/kinhub-server/service"
	"github.com/kinhub/kinhub-server/store"
	"github.com/kinhub/kinhub-server/ws"
	"go.uber.org/zap"
	"time"
)

type services map[string]service.Service

// createServices creates all services for the App along with the conflict and
// assignment services the web server routes use directly.
func createServices(appConfig Config, logger *zap.Logger, portalBase portal.Base, mall *store.Mall,
	detector *scheduling.Detector, wsHub *ws.Hub,
	logEntriesIn <-chan logging.LogEntry) (services, *conflictsvc.ConflictService, *assignsvc.AssignmentService, error) {
	services := make(services)
	// Debug stats service.
	s, err := debugstatssvc.NewService(logger.Named("debug-stats"), debugstatssvc.Config{
		IsEnabled: appConfig.Log.SystemDebugStatsInterval.Valid && appConfig.Log.SystemDebugStatsInterval.Int > 0,
		Interval:  time.Duration(appConfig.Log.SystemDebugStatsInterval.Int) * time.Minute,
	})
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "new debug stats service", nil)
	}
	services["debug-stats"] = s
	// Conflict service.
	conflictService := conflictsvc.New(logger.Named("conflict"), portalBase.NewPortal("conflict-service"),
		mall, detector)
	services["conflict"] = conflictService
	// Assignment service.
	assignmentService := assignsvc.New(logger.Named("assignment"), portalBase.NewPortal("assignment-service"),
		mall, conflictService)
	services["assignment"] = assignmentService
	// Device service.
	services["device"] = devicesvc.NewDeviceService(logger.Named("device"), portalBase.NewPortal("device-service"), mall)
	// Push service.
	services["push"] = pushsvc.NewPushService(logger.Named("push"), portalBase.NewPortal("push-service"), wsHub)
	// Log publishing service.
	services["log-publish"] = logpublishsvc.New(logger.Named("log-publish"), portalBase.NewPortal("log-publish"),
		logEntriesIn)
	return services, conflictService, assignmentService, nil
}

func (s services) run(ctx context.Context, logger *zap.Logger) error {
	return service.RunAll(ctx, logger, s)
}
