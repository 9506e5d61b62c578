// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops the reminder worker and cleanly tears down DB connections.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.App != nil && deps.App.Reminders != nil {
		deps.App.Reminders.Stop()
	}
	if deps.CoFlowMongoClient != nil {
		logger.Info("disconnecting CoFlow MongoDB client")
		if err := deps.CoFlowMongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
