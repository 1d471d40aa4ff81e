package memstore

import (
	"context"

	"docsign/internal/domain"

	"github.com/google/uuid"
)

type AuditEventRepository struct {
	store *Store
}

func (r *AuditEventRepository) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	r.store.audit = append(r.store.audit, event)
	return event, nil
}

func (r *AuditEventRepository) ListByTarget(ctx context.Context, targetType domain.AuditTargetType, targetID string) ([]domain.AuditEvent, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.AuditEvent
	for _, event := range r.store.audit {
		if event.TargetType == targetType && event.TargetID == targetID {
			out = append(out, event)
		}
	}
	return out, nil
}
