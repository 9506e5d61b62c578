// internal/app/bootstrap/app.go
package bootstrap

import (
	"fmt"

	"github.com/dalemusser/coflow/internal/app/features/health"
	"github.com/dalemusser/coflow/internal/app/store/audit"
	groupstore "github.com/dalemusser/coflow/internal/app/store/groups"
	membershipstore "github.com/dalemusser/coflow/internal/app/store/memberships"
	schedulestore "github.com/dalemusser/coflow/internal/app/store/schedule"
	userstore "github.com/dalemusser/coflow/internal/app/store/users"
	"github.com/dalemusser/coflow/internal/app/studygroups"
	"github.com/dalemusser/coflow/internal/app/system/auditlog"
	"github.com/dalemusser/coflow/internal/app/system/timezones"
	"github.com/dalemusser/coflow/internal/app/system/txn"
	"github.com/dalemusser/coflow/internal/app/system/workers"
	"go.uber.org/zap"
)

// App is the assembled study-group core for one backend.
type App struct {
	Manager   *studygroups.Manager
	Workflow  *studygroups.Workflow
	Reminders *workers.ReminderSweep

	backend string
	pinger  health.Pinger
}

// buildApp wires the services to the backend in deps.
func buildApp(appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*App, error) {
	loc, err := timezones.Location(appCfg.TimeZone)
	if err != nil {
		return nil, err
	}
	auditCfg := auditlog.Config{
		Group:       appCfg.AuditLogGroup,
		Membership:  appCfg.AuditLogMembership,
		Consistency: appCfg.AuditLogConsistency,
	}

	d := studygroups.Deps{
		Log:                        logger,
		Location:                   loc,
		RecheckConflictsOnApproval: appCfg.ApprovalConflictRecheck,
	}
	a := &App{}
	var reminders workers.ReminderSource

	switch {
	case deps.Memory != nil:
		s := deps.Memory
		d.Groups, d.Memberships, d.Schedule, d.Users = s.Groups(), s.Memberships(), s.Schedule(), s.Users()
		d.Tx = s.Transactor(true)
		d.Audit = auditlog.New(s.Audit(), logger, auditCfg)
		d.RepairLog = s.Audit()
		reminders = s.Schedule()
		a.backend = BackendMemory

	case deps.CoFlowMongoDatabase != nil:
		db := deps.CoFlowMongoDatabase
		sched := schedulestore.New(db)
		d.Groups = groupstore.New(db)
		d.Memberships = membershipstore.New(db)
		d.Schedule = sched
		d.Users = userstore.New(db)
		d.Tx = txn.New(db, logger)
		events := audit.New(db)
		d.Audit = auditlog.New(events, logger, auditCfg)
		d.RepairLog = events
		reminders = sched
		a.backend = BackendMongo
		a.pinger = health.MongoPinger{Client: deps.CoFlowMongoClient}

	default:
		return nil, fmt.Errorf("no store backend connected")
	}

	a.Manager = studygroups.NewManager(d)
	a.Workflow = studygroups.NewWorkflow(d)
	a.Reminders = workers.NewReminderSweep(reminders, nil, logger, workers.ReminderConfig{
		Interval:   appCfg.ReminderInterval,
		LeadDays:   appCfg.ReminderLeadDays,
		RatePerSec: appCfg.ReminderRatePerSec,
		Location:   loc,
	})
	return a, nil
}
