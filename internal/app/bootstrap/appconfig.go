// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// Store backends accepted by store_backend.
const (
	BackendMongo  = "mongo"
	BackendMemory = "memory"
)

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (HTTP ports, TLS, log level, CORS); everything
// specific to study-group coordination lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// StoreBackend selects "mongo" or "memory". The in-memory backend keeps
	// nothing across restarts and is meant for local runs.
	StoreBackend string

	// TimeZone is the single zone meeting dates are written in.
	TimeZone string

	// Audit logging destinations per category: all, db, log or off.
	AuditLogGroup       string
	AuditLogMembership  string
	AuditLogConsistency string

	// ApprovalConflictRecheck re-runs the schedule conflict check when an
	// owner approves a request.
	ApprovalConflictRecheck bool

	// Reminder worker. A zero interval disables it.
	ReminderInterval   time.Duration
	ReminderLeadDays   int
	ReminderRatePerSec float64
}
