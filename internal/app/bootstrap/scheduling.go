package bootstrap

import (
	"context"
	"database/sql"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/vetcare-scheduling/internal/booking"
	"github.com/wolfman30/vetcare-scheduling/internal/compliance"
	appconfig "github.com/wolfman30/vetcare-scheduling/internal/config"
	"github.com/wolfman30/vetcare-scheduling/internal/events"
	"github.com/wolfman30/vetcare-scheduling/internal/observability/metrics"
	"github.com/wolfman30/vetcare-scheduling/internal/practice"
	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

// SchedulingDeps are the infrastructure clients; any may be nil.
type SchedulingDeps struct {
	Config  *appconfig.Config
	Pool    *pgxpool.Pool
	SQLDB   *sql.DB
	Redis   *redis.Client
	Metrics *metrics.SchedulingMetrics
	Logger  *logging.Logger
}

// Scheduling is the wired domain layer.
type Scheduling struct {
	Slots     *scheduling.SlotService
	Booking   *booking.Service
	Writer    *scheduling.AvailabilityWriter
	Practices *practice.Store
	Audit     *compliance.AuditService
	Outbox    *events.OutboxStore
	Publisher events.Publisher
	Metrics   *metrics.SchedulingMetrics
	// Memory is set when no database is configured.
	Memory *scheduling.MemoryStore
}

// openHours treats every day as open all day when no practice store exists.
type openHours struct{}

func (openHours) EffectiveHours(_ context.Context, _ uuid.UUID, d civil.Date) (*scheduling.OperatingHours, error) {
	return scheduling.AllDay(d), nil
}

// BuildScheduling wires stores and services. Without Postgres it falls back to
// an in-memory store so the API can run locally.
func BuildScheduling(deps SchedulingDeps) *Scheduling {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = appconfig.Load()
	}
	out := &Scheduling{Publisher: events.NopPublisher{}, Metrics: deps.Metrics}

	var hours scheduling.HoursSource = openHours{}
	if deps.Redis != nil {
		out.Practices = practice.NewStore(deps.Redis)
		hours = out.Practices
	}

	var (
		records      scheduling.RecordSource
		recordWriter scheduling.RecordWriter
		reader       scheduling.AppointmentReader
		writer       scheduling.AppointmentWriter
	)
	if deps.Pool != nil {
		out.Outbox = events.NewOutboxStore(deps.Pool)
		out.Publisher = events.NewOutboxPublisher(out.Outbox)
		availability := scheduling.NewAvailabilityRepository(deps.Pool)
		appointments := scheduling.NewAppointmentRepository(deps.Pool).WithOutbox(out.Outbox)
		records, recordWriter = availability, availability
		reader, writer = appointments, appointments
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory scheduling store")
		out.Memory = scheduling.NewMemoryStore()
		records, recordWriter = out.Memory, out.Memory
		reader, writer = out.Memory, out.Memory
	}
	if deps.SQLDB != nil {
		out.Audit = compliance.NewAuditService(deps.SQLDB)
	}

	conflicts := scheduling.NewConflictChecker(reader, logger)
	out.Slots = scheduling.NewSlotService(scheduling.NewAvailabilityStore(records, hours), conflicts, deps.Metrics, logger)
	out.Writer = scheduling.NewAvailabilityWriter(recordWriter, logger)

	bookingDeps := booking.Deps{
		Slots:        out.Slots,
		Appointments: writer,
		Metrics:      deps.Metrics,
		Logger:       logger,
	}
	// Assigning a nil *practice.Store or *compliance.AuditService to the
	// interface fields would make them non-nil.
	if out.Practices != nil {
		bookingDeps.Practices = out.Practices
	}
	if out.Audit != nil {
		bookingDeps.Audit = out.Audit
	}
	out.Booking = booking.NewService(bookingDeps, booking.Defaults{
		Timezone:            cfg.DefaultPracticeTimezone,
		SlotDurationMinutes: cfg.SlotDurationMinutes,
		MaxSlotsPresented:   cfg.MaxSlotsPresented,
	})
	return out
}
