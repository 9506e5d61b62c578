// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/coflow/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs one-time application initialization after DB connections and
// schema setup are complete, but before the HTTP handler is built. It
// applies timeout overrides, assembles the services and starts the
// reminder worker.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if n := timeouts.ConfigureFromEnv(); n > 0 {
		logger.Info("timeouts overridden from environment", zap.Int("count", n))
	}

	a, err := buildApp(appCfg, deps, logger)
	if err != nil {
		return err
	}
	*deps.App = *a

	if appCfg.ReminderInterval > 0 {
		deps.App.Reminders.Start()
	} else {
		deps.App.Reminders = nil
		logger.Info("reminder worker disabled")
	}
	return nil
}
