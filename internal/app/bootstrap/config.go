// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dalemusser/coflow/internal/app/system/auditlog"
	"github.com/dalemusser/coflow/internal/app/system/timezones"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for CoFlow.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, time_zone, etc.
//   - Environment variables: COFLOW_MONGO_URI, COFLOW_TIME_ZONE, etc.
//   - Command-line flags: --mongo_uri, --time_zone, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "coflow", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "store_backend", Default: BackendMongo, Desc: "Store backend: 'mongo' or 'memory'"},
	{Name: "time_zone", Default: "America/Chicago", Desc: "Zone meeting dates are written in"},

	// Audit logging settings
	{Name: "audit_log_group", Default: "all", Desc: "Group lifecycle event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_membership", Default: "all", Desc: "Membership event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_consistency", Default: "all", Desc: "Partial-write and repair event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	{Name: "approval_conflict_recheck", Default: false, Desc: "Re-check schedule conflicts when approving a request"},

	// Reminder worker
	{Name: "reminder_interval", Default: "15m", Desc: "How often to sweep for meeting reminders (0 disables)"},
	{Name: "reminder_lead_days", Default: 1, Desc: "Remind for meetings from today through today+N days"},
	{Name: "reminder_rate_per_sec", Default: "5", Desc: "Reminder hand-off rate (0 means unlimited)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig merges .env files, config files,
// environment variables (WAFFLE_* for core, COFLOW_* for app) and flags,
// with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "COFLOW", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	rate, err := strconv.ParseFloat(appValues.String("reminder_rate_per_sec"), 64)
	if err != nil {
		return nil, AppConfig{}, fmt.Errorf("reminder_rate_per_sec: %w", err)
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		StoreBackend:     appValues.String("store_backend"),
		TimeZone:         appValues.String("time_zone"),

		AuditLogGroup:       appValues.String("audit_log_group"),
		AuditLogMembership:  appValues.String("audit_log_membership"),
		AuditLogConsistency: appValues.String("audit_log_consistency"),

		ApprovalConflictRecheck: appValues.Bool("approval_conflict_recheck"),

		ReminderInterval:   appValues.Duration("reminder_interval", 15*time.Minute),
		ReminderLeadDays:   appValues.Int("reminder_lead_days"),
		ReminderRatePerSec: rate,
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
// The MongoDB URI is only checked when the mongo backend is selected.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	switch appCfg.StoreBackend {
	case BackendMongo:
		if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
			logger.Error("invalid MongoDB URI", zap.Error(err))
			return fmt.Errorf("invalid MongoDB URI: %w", err)
		}
		if appCfg.MongoDatabase == "" {
			return fmt.Errorf("mongo_database must be set")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store_backend must be %q or %q, got %q", BackendMongo, BackendMemory, appCfg.StoreBackend)
	}

	if !timezones.Valid(appCfg.TimeZone) {
		return fmt.Errorf("unsupported time_zone %q", appCfg.TimeZone)
	}

	for key, v := range map[string]string{
		"audit_log_group":       appCfg.AuditLogGroup,
		"audit_log_membership":  appCfg.AuditLogMembership,
		"audit_log_consistency": appCfg.AuditLogConsistency,
	} {
		if !auditlog.ValidSetting(v) {
			return fmt.Errorf("%s must be one of all, db, log, off; got %q", key, v)
		}
	}

	if appCfg.ReminderInterval < 0 {
		return fmt.Errorf("reminder_interval must not be negative")
	}
	if appCfg.ReminderLeadDays < 0 {
		return fmt.Errorf("reminder_lead_days must not be negative")
	}
	if appCfg.ReminderRatePerSec < 0 {
		return fmt.Errorf("reminder_rate_per_sec must not be negative")
	}
	return nil
}
