package service

import (
	"context"
	"fmt"
	"github.com/kinhub/kinhub-server/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Service is an interface for all services that can be run in app.App.
type Service interface {
	// Run the Service until the given context.Context is done.
	Run(ctx context.Context) error
}

// RunAll runs every Service in the given map under a shared errgroup until the
// given context is done or one of them fails. The map key names the service in
// logs and error details.
func RunAll(ctx context.Context, logger *zap.Logger, services map[string]Service) error {
	wg, lifetime := errgroup.WithContext(ctx)
	for name, serviceToRun := range services {
		// Copy values.
		name, serviceToRun := name, serviceToRun
		wg.Go(func() error {
			logger.Debug(fmt.Sprintf("service %s up", name))
			defer logger.Debug(fmt.Sprintf("service %s down", name))
			if err := serviceToRun.Run(lifetime); err != nil {
				return errors.Wrap(err, "run service", errors.Details{"service_name": name})
			}
			return nil
		})
	}
	return wg.Wait()
}
