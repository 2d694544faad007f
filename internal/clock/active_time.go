package clock

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// Provider converts wall-clock intervals into "active" elapsed time, honoring
// pause windows and (optionally) business hours. Active time is the quantity
// SLA targets are measured against; calendar time is kept only for display.
type Provider interface {
	Now() time.Time
	// ActiveBetween returns wall-clock elapsed time between start and end
	// minus any overlapping pause intervals. Identical inputs always produce
	// identical output. Inconsistent interval data clamps to zero.
	ActiveBetween(start, end time.Time, pauses []domain.PauseInterval) time.Duration
}

type provider struct {
	clock    Clock
	calendar *BusinessCalendar
	logger   *zap.Logger
}

// NewProvider builds the active-time provider. calendar may be nil, in which
// case every hour counts as active.
func NewProvider(clk Clock, calendar *BusinessCalendar, logger *zap.Logger) Provider {
	return &provider{clock: clk, calendar: calendar, logger: logger}
}

func (p *provider) Now() time.Time {
	return p.clock.Now()
}

func (p *provider) ActiveBetween(start, end time.Time, pauses []domain.PauseInterval) time.Duration {
	if end.Before(start) {
		p.logger.Warn("clock inconsistency: end precedes start, clamping to zero",
			zap.Time("start", start), zap.Time("end", end))
		return 0
	}

	excluded := make([]span, 0, len(pauses))
	for _, pause := range pauses {
		pauseEnd := end
		if pause.End != nil {
			pauseEnd = *pause.End
		}
		if pauseEnd.Before(pause.Start) {
			p.logger.Warn("clock inconsistency: pause interval ends before it starts, ignoring",
				zap.Time("pause_start", pause.Start), zap.Time("pause_end", pauseEnd))
			continue
		}
		excluded = append(excluded, span{from: pause.Start, to: pauseEnd})
	}
	if p.calendar != nil {
		excluded = append(excluded, p.calendar.OffHours(start, end)...)
	}

	active := end.Sub(start) - overlap(start, end, excluded)
	if active < 0 {
		p.logger.Warn("clock inconsistency: pause data implies negative active time, clamping to zero",
			zap.Time("start", start), zap.Time("end", end))
		return 0
	}
	return active
}

type span struct {
	from time.Time
	to   time.Time
}

// overlap returns the total duration within [start, end] covered by the
// given spans, counting overlapping spans once.
func overlap(start, end time.Time, spans []span) time.Duration {
	clipped := make([]span, 0, len(spans))
	for _, s := range spans {
		from, to := s.from, s.to
		if from.Before(start) {
			from = start
		}
		if to.After(end) {
			to = end
		}
		if !to.After(from) {
			continue
		}
		clipped = append(clipped, span{from: from, to: to})
	}
	if len(clipped) == 0 {
		return 0
	}

	sort.Slice(clipped, func(i, j int) bool {
		return clipped[i].from.Before(clipped[j].from)
	})

	var total time.Duration
	current := clipped[0]
	for _, s := range clipped[1:] {
		if s.from.After(current.to) {
			total += current.to.Sub(current.from)
			current = s
			continue
		}
		if s.to.After(current.to) {
			current.to = s.to
		}
	}
	total += current.to.Sub(current.from)
	return total
}
