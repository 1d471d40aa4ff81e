package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"docsign/internal/domain"

	"go.uber.org/zap"
)

type AuditEmitter struct {
	Repo   AuditEventRepository
	Clock  Clock
	Logger *zap.Logger
}

func NewAuditEmitter(repo AuditEventRepository, clock Clock, logger *zap.Logger) *AuditEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditEmitter{
		Repo:   repo,
		Clock:  clock,
		Logger: logger.With(zap.String("service", "audit")),
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if e == nil || e.Repo == nil {
		return domain.AuditEvent{}, errors.New("audit repository required")
	}
	if event.EventType == "" || event.TargetType == "" || event.ActorType == "" {
		return domain.AuditEvent{}, errors.New("audit event missing required fields")
	}
	if event.TenantID == "" {
		event.TenantID = domain.AuditSystemTenantID
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	return e.Repo.Append(ctx, event)
}

// Record emits an event and only logs failures; callers never fail on audit errors.
func (e *AuditEmitter) Record(ctx context.Context, tenantID, actorID string, eventType domain.AuditEventType, targetType domain.AuditTargetType, targetID string, details domain.AuditDetails) {
	if e == nil || e.Repo == nil {
		return
	}
	actorType := domain.AuditActorUser
	if actorID == "" {
		actorType = domain.AuditActorSystem
	}
	_, err := e.Emit(ctx, domain.AuditEvent{
		TenantID:    tenantID,
		EventType:   eventType,
		ActorType:   actorType,
		ActorIDHash: hashString(actorID),
		TargetType:  targetType,
		TargetID:    targetID,
		Details:     details,
	})
	if err != nil && e.Logger != nil {
		e.Logger.Warn("audit event not recorded",
			zap.String("event_type", string(eventType)),
			zap.String("target_id", targetID),
			zap.Error(err),
		)
	}
}

func (e *AuditEmitter) now() time.Time {
	if e != nil && e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}

func hashString(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
