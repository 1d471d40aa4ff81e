package db

import (
	"context"
	"errors"
	"time"

	"docsign/internal/domain"

	"gorm.io/gorm"
)

// AuditEventRepository appends to audit_events; the table rejects UPDATE and
// DELETE through a trigger.
type AuditEventRepository struct {
	db *gorm.DB
}

func NewAuditEventRepository(db *gorm.DB) *AuditEventRepository {
	return &AuditEventRepository{db: db}
}

func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if r.db == nil {
		return domain.AuditEvent{}, errDBUnavailable
	}
	if event.EventType == "" {
		return domain.AuditEvent{}, errors.New("event_type is required")
	}
	if event.ID == "" {
		event.ID = newUUID()
	}
	if event.TenantID == "" {
		event.TenantID = domain.AuditSystemTenantID
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)

	model := auditEventModelFromDomain(event)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.AuditEvent{}, err
	}
	return event, nil
}

func (r *AuditEventRepository) ListByTarget(ctx context.Context, targetType domain.AuditTargetType, targetID string) ([]domain.AuditEvent, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditEventModel
	if err := r.db.WithContext(ctx).
		Where("target_type = ? AND target_id = ?", string(targetType), targetID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditEvent, 0, len(models))
	for _, model := range models {
		out = append(out, auditEventFromModel(model))
	}
	return out, nil
}

func auditEventModelFromDomain(event domain.AuditEvent) AuditEventModel {
	return AuditEventModel{
		ID:          event.ID,
		TenantID:    event.TenantID,
		EventType:   string(event.EventType),
		ActorType:   string(event.ActorType),
		ActorIDHash: stringPtrIfNotEmpty(event.ActorIDHash),
		TargetType:  string(event.TargetType),
		TargetID:    event.TargetID,
		Details:     event.Details,
		CreatedAt:   event.CreatedAt.UTC(),
	}
}

func auditEventFromModel(model AuditEventModel) domain.AuditEvent {
	return domain.AuditEvent{
		ID:          model.ID,
		TenantID:    model.TenantID,
		EventType:   domain.AuditEventType(model.EventType),
		ActorType:   domain.AuditActorType(model.ActorType),
		ActorIDHash: stringValue(model.ActorIDHash),
		TargetType:  domain.AuditTargetType(model.TargetType),
		TargetID:    model.TargetID,
		Details:     model.Details,
		CreatedAt:   model.CreatedAt.UTC(),
	}
}
