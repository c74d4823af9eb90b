package app

import (
	"context"
	"github.com/kinhub/kinhub-server/errors"
	"github.com/kinhub/kinhub-server/logging"
	"github.com/kinhub/kinhub-server/portal"
	"github.com/kinhub/kinhub-server/scheduling"
	"github.com/kinhub/kinhub-server/store"
	"github.com/kinhub/kinhub-server/web_server"
	"github.com/kinhub/kinhub-server/ws"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
	"os"
	"time"
)

// App is a complete KinHub server instance.
type App struct {
	// config is the main config used for the App.
	config Config
	// mall provides persistence.
	mall *store.Mall
	// webServer serves the REST API as well as the websocket endpoint for client
	// pushes.
	webServer *web_server.WebServer
	// wsHub is the hub for websocket connections.
	wsHub *ws.Hub
	// portalBase provides pub/sub channels for services. Backed by MQTT if an
	// address is configured and in-process otherwise.
	portalBase portal.Base
	publishLog <-chan logging.LogEntry
}

func NewApp(config Config) *App {
	return &App{
		config: config,
	}
}

// Boot sets everything up based on the set config and boots.
func (app *App) Boot(ctx context.Context) error {
	// Validate config.
	err := ValidateConfig(app.config)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrFatal,
			Err:     err,
			Message: "invalid config",
		}
	}
	// Setup logger.
	logger, publishLog := app.setupLogging(ctx, app.config.Log)
	app.publishLog = publishLog
	logging.ApplyToGlobalLoggers(logger)
	defer func(loggerToSync *zap.Logger) {
		_ = loggerToSync.Sync()
	}(logger)
	// Boot.
	err = app.boot(ctx)
	if err != nil {
		err = errors.Wrap(err, "boot", nil)
		errors.Log(logging.AppLogger, err)
		return err
	}
	return nil
}

func (app *App) boot(ctx context.Context) error {
	logging.AppLogger.Warn("booting up")
	// Connect database.
	logging.AppLogger.Debug("connecting to database")
	db, err := connectDB(ctx, app.config.DBConn, defaultMaxDBConnections)
	if err != nil {
		return errors.Wrap(err, "connect database", nil)
	}
	defer db.Close()
	app.mall = store.NewMall(logging.DBLogger, db)
	logging.AppLogger.Debug("database ready")
	logging.AppLogger.Debug("setting up...")
	// Create portal base. If no MQTT address is provided, messages stay
	// in-process.
	if app.config.MQTTAddr.Valid {
		base, err := portal.NewBase(logging.AppLogger.Named("portal"), portal.Config{MQTTAddr: app.config.MQTTAddr.String})
		if err != nil {
			return errors.Wrap(err, "new portal base", nil)
		}
		app.portalBase = base
	} else {
		app.portalBase = portal.NewLocalBase(logging.AppLogger.Named("portal"))
	}
	// Create conflict detector.
	detector := scheduling.NewDetector(scheduling.NewResolver(scheduling.Config{
		TravelMargin: time.Duration(app.config.Scheduling.TravelMarginMin) * time.Minute,
	}))
	// Create websocket hub.
	app.wsHub = ws.NewHub(logging.WSLogger)
	// Create web server.
	webServer, err := web_server.NewWebServer(logging.WebServerLogger, web_server.Config{
		ServeAddr:    app.config.ServeAddr,
		WriteTimeout: web_server.DefaultWriteTimeout,
		ReadTimeout:  web_server.DefaultReadTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "create web server", nil)
	}
	app.webServer = webServer
	// Create services.
	appServices, conflictService, assignmentService, err := createServices(app.config, logging.AppLogger,
		app.portalBase, app.mall, detector, app.wsHub, app.publishLog)
	if err != nil {
		return errors.Wrap(err, "create services", nil)
	}
	app.webServer.PopulateRoutes(web_server.Dependencies{
		Portal:      app.portalBase.NewPortal("web-server"),
		Store:       app.mall,
		Conflicts:   conflictService,
		Assignments: assignmentService,
		Hub:         app.wsHub,
	})
	logging.AppLogger.Debug("setup completed. booting...")
	// Boot everything.
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := app.portalBase.Open(egCtx)
		if err != nil {
			return errors.Wrap(err, "open portal base", nil)
		}
		return nil
	})
	eg.Go(func() error {
		err := app.wsHub.Run(egCtx)
		if err != nil {
			return errors.Wrap(err, "run websocket hub", nil)
		}
		return nil
	})
	eg.Go(func() error {
		err := app.webServer.Run(egCtx)
		if err != nil {
			return errors.Wrap(err, "run web server", nil)
		}
		return nil
	})
	eg.Go(func() error {
		return appServices.run(egCtx, logging.AppLogger)
	})
	logging.AppLogger.Warn("completed issuing boot commands")
	// Wait for exit.
	err = eg.Wait()
	logging.AppLogger.Warn("shutting down")
	if err != nil {
		return errors.Wrap(err, "run until shutdown", nil)
	}
	return nil
}

func (app *App) setupLogging(ctx context.Context, config LogConfig) (*zap.Logger, <-chan logging.LogEntry) {
	encConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cores := make([]zapcore.Core, 0)
	// Setup stdout logger with colorful level output.
	stdOutEncConfig := encConfig
	stdOutEncConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(stdOutEncConfig),
		zapcore.Lock(os.Stdout),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= config.StdoutLogLevel
		})))
	// Setup error logger.
	cores = append(cores, zapcore.NewCore(
		zapcore.NewConsoleEncoder(encConfig),
		zapcore.Lock(os.Stderr),
		zap.LevelEnablerFunc(func(level zapcore.Level) bool {
			return level >= zap.ErrorLevel
		})))
	// Setup high priority logger. Rotated files use JSON for log shippers.
	if config.HighPriorityOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.HighPriorityOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.WarnLevel
			})))
	}
	// Setup debug logger.
	if config.DebugOutput.Valid {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encConfig),
			zapcore.AddSync(&lumberjack.Logger{
				Filename: config.DebugOutput.String,
				MaxSize:  config.MaxSize,
				MaxAge:   config.KeepDays,
			}),
			zap.LevelEnablerFunc(func(level zapcore.Level) bool {
				return level >= zap.DebugLevel
			})))
	}
	// Setup publish logger.
	publishLogger, publishLog := logging.NewNoPublishOmitCore(ctx)
	cores = append(cores, publishLogger)
	// Combine.
	logger := zap.New(zapcore.NewTee(cores...))
	return logger, publishLog
}
