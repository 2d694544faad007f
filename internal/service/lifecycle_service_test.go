package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/internal/events"
)

// lifecycleFixture wires policy resolution, the timer engine and the
// lifecycle handlers through a real dispatcher, mirroring the production
// registration order.
type lifecycleFixture struct {
	*engineFixture
	dispatcherPub events.Dispatcher
	policies      *PolicyService
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	fx := newEngineFixture(t)

	policies, _, _ := newPolicyFixture()
	ctx := context.Background()
	targets := urgentPolicy().Targets
	_, err := policies.Create(ctx, &domain.SLAPolicy{
		Name: "support default", IsDefault: true, Targets: targets,
	})
	require.NoError(t, err)

	lifecycle := NewLifecycleService(policies, fx.engine, zap.NewNop())
	lifecycle.RegisterHandlers(fx.dispatcher)

	return &lifecycleFixture{engineFixture: fx, dispatcherPub: fx.dispatcher, policies: policies}
}

func (fx *lifecycleFixture) publish(t *testing.T, event events.Event) {
	t.Helper()
	require.NoError(t, fx.dispatcherPub.Publish(context.Background(), event))
}

func (fx *lifecycleFixture) timersFor(t *testing.T, ticketID string) map[domain.TimerMetric]domain.SLATimer {
	t.Helper()
	timers, err := fx.engine.TimersForTicket(context.Background(), ticketID)
	require.NoError(t, err)
	out := map[domain.TimerMetric]domain.SLATimer{}
	for _, timer := range timers {
		out[timer.Metric] = timer
	}
	return out
}

func createdEvent(ticketID string, at time.Time) events.Event {
	return events.Event{
		ID:        "evt-created-" + ticketID,
		Type:      events.EventTicketCreated,
		TicketID:  ticketID,
		Ticket:    urgentTicket(ticketID),
		Timestamp: at,
	}
}

func TestTicketCreatedStartsBothTimers(t *testing.T) {
	fx := newLifecycleFixture(t)

	fx.publish(t, createdEvent("t-1", testStart))

	timers := fx.timersFor(t, "t-1")
	require.Len(t, timers, 2)
	assert.Equal(t, domain.TimerStateRunning, timers[domain.TimerMetricResponse].State)
	assert.Equal(t, 15*time.Minute, timers[domain.TimerMetricResponse].Target)
	assert.Equal(t, domain.TimerStateRunning, timers[domain.TimerMetricResolution].State)
	assert.Equal(t, 120*time.Minute, timers[domain.TimerMetricResolution].Target)
}

func TestTicketWithoutPolicyIsUntracked(t *testing.T) {
	fx := newEngineFixture(t)
	policies, _, _ := newPolicyFixture() // no policies at all
	lifecycle := NewLifecycleService(policies, fx.engine, zap.NewNop())
	lifecycle.RegisterHandlers(fx.dispatcher)

	err := fx.dispatcher.Publish(context.Background(), createdEvent("t-1", testStart))
	require.NoError(t, err)

	timers, err := fx.engine.TimersForTicket(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Empty(t, timers)
}

func TestAgentReplyMeetsResponseTimer(t *testing.T) {
	fx := newLifecycleFixture(t)

	fx.publish(t, createdEvent("t-1", testStart))

	sentAt := testStart.Add(9 * time.Minute)
	fx.clock.Advance(9 * time.Minute)
	fx.publish(t, events.Event{
		Type:      events.EventTicketMessageAdded,
		TicketID:  "t-1",
		Ticket:    urgentTicket("t-1"),
		Timestamp: sentAt,
		Payload: events.TicketMessageAddedPayload{
			MessageID:  "m-1",
			SenderType: domain.SenderTypeAgent,
			SentAt:     sentAt,
		},
	})

	timers := fx.timersFor(t, "t-1")
	response := timers[domain.TimerMetricResponse]
	assert.Equal(t, domain.TimerStateMet, response.State)
	assert.Equal(t, 9*time.Minute, response.Accumulated)
	assert.Equal(t, domain.TimerStateRunning, timers[domain.TimerMetricResolution].State)
}

func TestCustomerReplyDoesNotMeetResponseTimer(t *testing.T) {
	fx := newLifecycleFixture(t)

	fx.publish(t, createdEvent("t-1", testStart))
	fx.publish(t, events.Event{
		Type:      events.EventTicketMessageAdded,
		TicketID:  "t-1",
		Ticket:    urgentTicket("t-1"),
		Timestamp: testStart.Add(5 * time.Minute),
		Payload: events.TicketMessageAddedPayload{
			MessageID:  "m-1",
			SenderType: domain.SenderTypeCustomer,
			SentAt:     testStart.Add(5 * time.Minute),
		},
	})

	timers := fx.timersFor(t, "t-1")
	assert.Equal(t, domain.TimerStateRunning, timers[domain.TimerMetricResponse].State)
}

func TestResolvedMeetsBothTimers(t *testing.T) {
	fx := newLifecycleFixture(t)

	fx.publish(t, createdEvent("t-1", testStart))

	resolvedAt := testStart.Add(60 * time.Minute)
	fx.clock.Advance(60 * time.Minute)
	fx.publish(t, events.Event{
		Type:      events.EventTicketResolved,
		TicketID:  "t-1",
		Ticket:    urgentTicket("t-1"),
		Timestamp: resolvedAt,
	})

	timers := fx.timersFor(t, "t-1")
	// the response timer breached at minute 15, long before resolution
	assert.Equal(t, domain.TimerStateBreached, timers[domain.TimerMetricResponse].State)
	resolution := timers[domain.TimerMetricResolution]
	assert.Equal(t, domain.TimerStateMet, resolution.State)
	assert.Equal(t, 60*time.Minute, resolution.Accumulated)
}

func TestPendingUserPausesAndResumesTimers(t *testing.T) {
	fx := newLifecycleFixture(t)

	fx.publish(t, createdEvent("t-1", testStart))

	pausedAt := testStart.Add(10 * time.Minute)
	fx.clock.Advance(10 * time.Minute)
	fx.publish(t, events.Event{
		Type:      events.EventTicketUpdated,
		TicketID:  "t-1",
		Ticket:    urgentTicket("t-1"),
		Timestamp: pausedAt,
		Payload: events.TicketUpdatedPayload{
			OldStatus: domain.TicketStatusOpen,
			NewStatus: domain.TicketStatusPendingUser,
		},
	})

	timers := fx.timersFor(t, "t-1")
	require.Equal(t, domain.TimerStatePaused, timers[domain.TimerMetricResponse].State)
	require.Equal(t, domain.TimerStatePaused, timers[domain.TimerMetricResolution].State)
	assert.Equal(t, PauseReasonWaitingOnCustomer, timers[domain.TimerMetricResponse].Pauses[0].Reason)

	resumedAt := pausedAt.Add(30 * time.Minute)
	fx.clock.Advance(30 * time.Minute)
	fx.publish(t, events.Event{
		Type:      events.EventTicketUpdated,
		TicketID:  "t-1",
		Ticket:    urgentTicket("t-1"),
		Timestamp: resumedAt,
		Payload: events.TicketUpdatedPayload{
			OldStatus: domain.TicketStatusPendingUser,
			NewStatus: domain.TicketStatusInProgress,
		},
	})

	timers = fx.timersFor(t, "t-1")
	response := timers[domain.TimerMetricResponse]
	require.Equal(t, domain.TimerStateRunning, response.State)
	assert.Equal(t, 30*time.Minute, response.TotalPaused())
	// only 10 active minutes elapsed, so the 15-minute target still holds
	assert.Equal(t, 10*time.Minute, response.Accumulated)
}

// The urgent scenario end to end: at risk at 12 active minutes, breached
// past 15, with a 30-minute customer pause shifting both wall-clock moments.
func TestUrgentResponseScenarioWithPause(t *testing.T) {
	fx := newLifecycleFixture(t)
	ctx := context.Background()

	fx.publish(t, createdEvent("t-1", testStart))
	timers := fx.timersFor(t, "t-1")
	responseID := timers[domain.TimerMetricResponse].ID

	// minute 5: customer needs to supply details
	fx.clock.Advance(5 * time.Minute)
	fx.publish(t, events.Event{
		Type: events.EventTicketUpdated, TicketID: "t-1", Ticket: urgentTicket("t-1"),
		Timestamp: fx.clock.Now(),
		Payload: events.TicketUpdatedPayload{
			OldStatus: domain.TicketStatusOpen, NewStatus: domain.TicketStatusPendingUser,
		},
	})

	// minute 35: customer replies, tracking resumes
	fx.clock.Advance(30 * time.Minute)
	fx.publish(t, events.Event{
		Type: events.EventTicketUpdated, TicketID: "t-1", Ticket: urgentTicket("t-1"),
		Timestamp: fx.clock.Now(),
		Payload: events.TicketUpdatedPayload{
			OldStatus: domain.TicketStatusPendingUser, NewStatus: domain.TicketStatusOpen,
		},
	})

	// minute 42: 12 active minutes reached, at-risk latches
	fx.clock.Advance(7 * time.Minute)
	result, err := fx.engine.Evaluate(ctx, responseID, fx.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLevelAtRisk, result.Risk)
	assert.False(t, result.Breached)
	assert.Len(t, fx.published.ofType(events.EventTimerAtRisk), 1)

	// minute 46: 16 active minutes, breach
	fx.clock.Advance(4 * time.Minute)
	result, err = fx.engine.Evaluate(ctx, responseID, fx.clock.Now())
	require.NoError(t, err)
	assert.True(t, result.Breached)
	assert.Equal(t, 1, fx.breaches.count())

	breachEvents := fx.published.ofType(events.EventTimerBreached)
	require.Len(t, breachEvents, 1)
	payload, ok := breachEvents[0].Payload.(events.TimerEventPayload)
	require.True(t, ok)
	assert.Equal(t, domain.TimerMetricResponse, payload.Metric)
	assert.Equal(t, 15*time.Minute, payload.Target)
}

func TestDuplicateResolvedEventsAreHarmless(t *testing.T) {
	fx := newLifecycleFixture(t)

	fx.publish(t, createdEvent("t-1", testStart))

	resolvedAt := testStart.Add(10 * time.Minute)
	fx.clock.Advance(10 * time.Minute)
	resolved := events.Event{
		Type: events.EventTicketResolved, TicketID: "t-1",
		Ticket: urgentTicket("t-1"), Timestamp: resolvedAt,
	}
	fx.publish(t, resolved)
	fx.publish(t, resolved)

	timers := fx.timersFor(t, "t-1")
	resolution := timers[domain.TimerMetricResolution]
	assert.Equal(t, domain.TimerStateMet, resolution.State)
	assert.Equal(t, 10*time.Minute, resolution.Accumulated)
}
