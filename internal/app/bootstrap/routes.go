// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"

	healthfeature "github.com/dalemusser/coflow/internal/app/features/health"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// The group and membership operations are a module-internal Go API
// (internal/app/studygroups) that buildApp wires for in-module callers.
// No HTTP surface exposes them, so the only route served here is
// /health for operators and load balancers.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	h := healthfeature.NewHandler(deps.App.pinger, deps.App.backend, logger)
	r.Mount("/health", healthfeature.Routes(h))

	return r, nil
}
