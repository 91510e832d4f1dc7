// Package availability computes bookable appointment slots for a provider.
//
// Slot computation is pure arithmetic over a provider's weekly availability
// window and the appointments already booked on the date. All times are
// tenant-local wall-clock "HH:MM" values compared minute-by-minute on a
// same-day basis; no timezone conversion is applied anywhere, because stored
// dates and times are tenant-local by contract.
package availability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClinicPipe/ClinicPipe/internal/models"
)

// Source supplies the stored data slot computation runs over. The store
// implements it directly; tests use in-memory fakes.
type Source interface {
	// GetAvailabilityWindow returns the provider's window for the weekday,
	// or nil if the provider has no window that day (closed).
	GetAvailabilityWindow(ctx context.Context, tenantID, providerID string, weekday int) (*models.AvailabilityWindow, error)
	// ListProviderAppointments returns the provider's appointments on the
	// date, regardless of status.
	ListProviderAppointments(ctx context.Context, tenantID, providerID, date string) ([]models.Appointment, error)
}

// Resolver resolves free slots for one provider at a time. Providers are
// independent; there is no cross-provider conflict checking.
type Resolver struct {
	src Source
}

// NewResolver creates a Resolver backed by the given data source.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Slots returns the ordered bookable start times ("HH:MM") for the provider
// on the date, at the granularity of the service duration. A provider with no
// window for the date's weekday yields an empty list.
func (r *Resolver) Slots(ctx context.Context, tenantID, providerID, date string, durationMinutes int) ([]string, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	window, err := r.src.GetAvailabilityWindow(ctx, tenantID, providerID, int(day.Weekday()))
	if err != nil {
		return nil, fmt.Errorf("failed to load availability window: %w", err)
	}
	if window == nil {
		slog.Debug("Resolver.Slots: provider closed on weekday", "provider", providerID, "date", date, "weekday", int(day.Weekday()))
		return []string{}, nil
	}

	booked, err := r.src.ListProviderAppointments(ctx, tenantID, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load booked appointments: %w", err)
	}

	slots, err := ComputeSlots(*window, durationMinutes, booked)
	if err != nil {
		return nil, err
	}
	slog.Debug("Resolver.Slots: computed slots", "provider", providerID, "date", date, "count", len(slots))
	return slots, nil
}

// ComputeSlots generates candidate start times at the service-duration
// granularity from window start to window end minus the duration, excluding
// candidates that overlap the lunch break or any non-cancelled booked
// appointment.
func ComputeSlots(window models.AvailabilityWindow, durationMinutes int, booked []models.Appointment) ([]string, error) {
	if durationMinutes <= 0 {
		return nil, fmt.Errorf("service duration must be positive, got %d", durationMinutes)
	}
	start, err := parseMinutes(window.StartTime)
	if err != nil {
		return nil, fmt.Errorf("invalid window start: %w", err)
	}
	end, err := parseMinutes(window.EndTime)
	if err != nil {
		return nil, fmt.Errorf("invalid window end: %w", err)
	}

	lunchStart, lunchEnd := -1, -1
	if window.LunchStart != "" && window.LunchEnd != "" {
		lunchStart, err = parseMinutes(window.LunchStart)
		if err != nil {
			return nil, fmt.Errorf("invalid lunch start: %w", err)
		}
		lunchEnd, err = parseMinutes(window.LunchEnd)
		if err != nil {
			return nil, fmt.Errorf("invalid lunch end: %w", err)
		}
	}

	type interval struct{ start, end int }
	var occupied []interval
	for _, appt := range booked {
		if appt.Status == models.AppointmentStatusCancelled {
			continue
		}
		aStart, err := parseMinutes(appt.StartTime)
		if err != nil {
			// A malformed stored time cannot block slots it does not describe.
			slog.Warn("ComputeSlots: skipping appointment with malformed start time", "appointment", appt.ID, "start_time", appt.StartTime)
			continue
		}
		aEnd := aStart + durationMinutes
		if appt.EndTime != "" {
			if parsed, err := parseMinutes(appt.EndTime); err == nil {
				aEnd = parsed
			}
		}
		occupied = append(occupied, interval{aStart, aEnd})
	}

	slots := []string{}
	for t := start; t+durationMinutes <= end; t += durationMinutes {
		candEnd := t + durationMinutes
		if lunchStart >= 0 && t < lunchEnd && lunchStart < candEnd {
			continue
		}
		conflict := false
		for _, occ := range occupied {
			if t < occ.end && occ.start < candEnd {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		slots = append(slots, formatMinutes(t))
	}
	return slots, nil
}

// parseMinutes converts an "HH:MM" wall-clock value to minutes since midnight.
func parseMinutes(hhmm string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", hhmm, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q: out of range", hhmm)
	}
	return h*60 + m, nil
}

// formatMinutes converts minutes since midnight back to "HH:MM".
func formatMinutes(total int) string {
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
