// Package schedule writes heating schedule settings back to the platform and
// triggers the remote optimizer.
package schedule

import (
	"context"

	"github.com/sakumikko/lammonsaato-sub000/internal/derived"
	"github.com/sakumikko/lammonsaato-sub000/internal/logger"
	"github.com/sakumikko/lammonsaato-sub000/internal/observability"
)

// Caller is the outbound service-call side of the connection client.
type Caller interface {
	CallService(ctx context.Context, domain, service string, data map[string]any) error
}

// Service applies schedule settings and requests recalculation.
type Service struct {
	caller  Caller
	log     *logger.Logger
	metrics *observability.Metrics
}

// NewService creates a schedule service.
func NewService(caller Caller, log *logger.Logger, metrics *observability.Metrics) *Service {
	return &Service{caller: caller, log: log, metrics: metrics}
}

// Settings is the user-editable schedule configuration.
type Settings struct {
	Enabled    bool
	TotalHours float64
	StartTime  string
}

// Apply writes the settings to their helper entities. A rejected write
// surfaces as an error to the caller and nothing else; connection state is
// untouched.
func (s *Service) Apply(ctx context.Context, st Settings) error {
	service := "turn_off"
	if st.Enabled {
		service = "turn_on"
	}
	if err := s.caller.CallService(ctx, "input_boolean", service, map[string]any{
		"entity_id": string(derived.EntHeatingEnabled),
	}); err != nil {
		return err
	}

	if err := s.caller.CallService(ctx, "input_number", "set_value", map[string]any{
		"entity_id": string(derived.EntTotalHours),
		"value":     st.TotalHours,
	}); err != nil {
		return err
	}

	if st.StartTime != "" {
		if err := s.caller.CallService(ctx, "input_datetime", "set_datetime", map[string]any{
			"entity_id": string(derived.EntScheduleStart),
			"time":      st.StartTime + ":00",
		}); err != nil {
			return err
		}
	}
	return nil
}

// RecalcResult is the explicit outcome of a recalculation. Applied is false
// when the optimizer declined, typically because required upstream data
// (price forecasts, weather) was unavailable; the settings are saved either
// way and the schedule stays pending.
type RecalcResult struct {
	Applied bool
	Reason  string
}

// Recalculate invokes the remote schedule optimizer. The optimizer's own
// algorithm is opaque to this client; a remote business failure is an
// outcome, not an error.
func (s *Service) Recalculate(ctx context.Context) RecalcResult {
	err := s.caller.CallService(ctx, "lammonsaato", "optimize_schedule", nil)
	if err != nil {
		s.log.Warnw("schedule recalculation declined", "error", err)
		if s.metrics != nil {
			s.metrics.ScheduleRecalcs.WithLabelValues("pending").Inc()
		}
		return RecalcResult{Applied: false, Reason: err.Error()}
	}
	if s.metrics != nil {
		s.metrics.ScheduleRecalcs.WithLabelValues("applied").Inc()
	}
	return RecalcResult{Applied: true}
}
