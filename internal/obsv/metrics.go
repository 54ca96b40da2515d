// Package obsv holds the process-wide metric instruments used across the
// command core, projector, and sweeper, adapted from the reference
// internal/metrics package onto this service's own event vocabulary.
package obsv

import (
	"context"
	"sync"

	"github.com/transitline/ticketing-core/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

var (
	CommandsIssued *telemetry.Counter
	CommandsFailed *telemetry.Counter

	ReservationDuration *telemetry.Histogram
	ProjectorLagSeconds *telemetry.Histogram

	SweeperExpired    *telemetry.Counter
	ProjectorApplied  *telemetry.Counter
	ProjectorDeadLettered *telemetry.Counter

	ActiveReservations *telemetry.UpDownCounter

	initOnce sync.Once
	initErr  error
)

// Init builds every instrument exactly once. Safe to call from multiple
// process entrypoints (api, projector, sweeper binaries).
func Init() error {
	initOnce.Do(func() { initErr = initMetrics() })
	return initErr
}

func initMetrics() error {
	var err error

	CommandsIssued, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_commands_total",
		Description: "Total number of commands accepted by kind",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	CommandsFailed, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_command_failures_total",
		Description: "Total number of commands rejected by kind and error kind",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ReservationDuration, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "ticketing_reservation_duration_seconds",
		Description: "Duration from reservation to confirmation or terminal state",
		Unit:        "s",
	}, []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 3600})
	if err != nil {
		return err
	}

	ProjectorLagSeconds, err = telemetry.NewHistogramWithBuckets(telemetry.MetricOpts{
		Name:        "ticketing_projector_lag_seconds",
		Description: "Age of the event at the moment the projector applied it",
		Unit:        "s",
	}, []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60})
	if err != nil {
		return err
	}

	SweeperExpired, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_sweeper_expired_total",
		Description: "Total number of reservations expired by the sweeper",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ProjectorApplied, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_projector_applied_total",
		Description: "Total number of events applied by the projector, by event type",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ProjectorDeadLettered, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "ticketing_projector_dead_lettered_total",
		Description: "Total number of events diverted to the dead-letter topic",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	ActiveReservations, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "ticketing_active_reservations",
		Description: "Current number of RESERVED bookings",
		Unit:        "1",
	})
	if err != nil {
		return err
	}

	return nil
}

// RecordCommand records a command of the given kind being accepted.
func RecordCommand(ctx context.Context, command string) {
	if CommandsIssued != nil {
		CommandsIssued.Inc(ctx, attribute.String("command", command))
	}
}

// RecordCommandFailure records a command rejected with the given error kind.
func RecordCommandFailure(ctx context.Context, command, errorKind string) {
	if CommandsFailed != nil {
		CommandsFailed.Inc(ctx,
			attribute.String("command", command),
			attribute.String("error_kind", errorKind),
		)
	}
}

// RecordProjectorApplied records the projector having applied one event,
// along with how stale the event was by the time it was processed.
func RecordProjectorApplied(ctx context.Context, eventType string, lagSeconds float64) {
	if ProjectorApplied != nil {
		ProjectorApplied.Inc(ctx, attribute.String("event_type", eventType))
	}
	if ProjectorLagSeconds != nil {
		ProjectorLagSeconds.Record(ctx, lagSeconds, attribute.String("event_type", eventType))
	}
}

// RecordDeadLettered records an event diverted to the dead-letter topic.
func RecordDeadLettered(ctx context.Context, eventType string) {
	if ProjectorDeadLettered != nil {
		ProjectorDeadLettered.Inc(ctx, attribute.String("event_type", eventType))
	}
}

// RecordSweeperExpired records n bookings expired in one sweep.
func RecordSweeperExpired(ctx context.Context, n int64) {
	if SweeperExpired != nil {
		SweeperExpired.Add(ctx, n)
	}
	if ActiveReservations != nil {
		ActiveReservations.Add(ctx, -n)
	}
}
