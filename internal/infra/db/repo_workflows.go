package db

import (
	"context"
	"time"

	"docsign/internal/domain"
	"docsign/internal/usecase"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type WorkflowRepository struct {
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

func (r *WorkflowRepository) Create(ctx context.Context, wf domain.SignatureWorkflow) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if wf.ID == "" {
		wf.ID = newUUID()
	}
	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	if wf.UpdatedAt.IsZero() {
		wf.UpdatedAt = wf.CreatedAt
	}
	model, signers := workflowModelFromDomain(wf)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&model).Error; err != nil {
			return err
		}
		if len(signers) == 0 {
			return nil
		}
		return tx.Create(&signers).Error
	})
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*domain.SignatureWorkflow, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	return r.load(ctx, id, false)
}

func (r *WorkflowRepository) GetForUpdate(ctx context.Context, id string) (*domain.SignatureWorkflow, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	return r.load(ctx, id, true)
}

func (r *WorkflowRepository) load(ctx context.Context, id string, forUpdate bool) (*domain.SignatureWorkflow, error) {
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}
	query := r.db.WithContext(ctx)
	if forUpdate {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var model WorkflowModel
	if err := query.Where("id = ?", key).First(&model).Error; err != nil {
		return nil, translateNotFound(err, domain.ErrNotFound)
	}
	var signers []WorkflowSignerModel
	if err := r.db.WithContext(ctx).
		Where("workflow_id = ?", key).
		Order("signing_order ASC").
		Order("id ASC").
		Find(&signers).Error; err != nil {
		return nil, err
	}
	model.Signers = signers
	return workflowFromModel(model), nil
}

func (r *WorkflowRepository) ListBySigner(ctx context.Context, signerID, tenantID string, status domain.WorkflowStatus) ([]domain.SignatureWorkflow, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&WorkflowSignerModel{}).Select("workflow_id").Where("signer_id = ?", signerID))
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	var models []WorkflowModel
	err := query.
		Preload("Signers", func(db *gorm.DB) *gorm.DB {
			return db.Order("signing_order ASC").Order("id ASC")
		}).
		Order("created_at DESC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.SignatureWorkflow, 0, len(models))
	for _, model := range models {
		out = append(out, *workflowFromModel(model))
	}
	return out, nil
}

func (r *WorkflowRepository) ListOverdueIDs(ctx context.Context, now time.Time) ([]string, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&WorkflowModel{}).
		Where("status IN ? AND due_date IS NOT NULL AND due_date <= ?",
			[]string{string(domain.WorkflowStatusPending), string(domain.WorkflowStatusInProgress)}, now.UTC()).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *WorkflowRepository) Update(ctx context.Context, wf domain.SignatureWorkflow) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, signers := workflowModelFromDomain(wf)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&WorkflowModel{}).Where("id = ?", model.ID).Updates(map[string]any{
			"status":               model.Status,
			"completed_signatures": model.CompletedSignatures,
			"due_date":             model.DueDate,
			"completed_at":         model.CompletedAt,
			"voided_at":            model.VoidedAt,
			"void_reason":          model.VoidReason,
			"voided_by":            model.VoidedBy,
			"updated_at":           model.UpdatedAt,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		for _, signer := range signers {
			if err := tx.Model(&WorkflowSignerModel{}).
				Where("id = ? AND workflow_id = ?", signer.ID, model.ID).
				Updates(map[string]any{
					"status":       signer.Status,
					"signed_at":    signer.SignedAt,
					"signature_id": signer.SignatureID,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// WithTx runs fn against a repository bound to a single database transaction,
// so row locks taken by GetForUpdate are held until fn returns.
func (r *WorkflowRepository) WithTx(ctx context.Context, fn func(repo usecase.WorkflowRepository) error) error {
	if r.db == nil {
		return errDBUnavailable
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&WorkflowRepository{db: tx})
	})
}

func workflowModelFromDomain(wf domain.SignatureWorkflow) (WorkflowModel, []WorkflowSignerModel) {
	updatedAt := wf.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	model := WorkflowModel{
		ID:                  wf.ID,
		DocumentType:        wf.Document.Type,
		DocumentID:          wf.Document.ID,
		TenantID:            wf.Document.TenantID,
		RequesterID:         wf.RequesterID,
		RequesterName:       wf.RequesterName,
		Status:              string(wf.Status),
		TotalSigners:        wf.TotalSigners,
		CompletedSignatures: wf.CompletedSignatures,
		DueDate:             utcPtr(wf.DueDate),
		CompletedAt:         utcPtr(wf.CompletedAt),
		VoidedAt:            utcPtr(wf.VoidedAt),
		VoidReason:          stringPtrIfNotEmpty(wf.VoidReason),
		VoidedBy:            stringPtrIfNotEmpty(wf.VoidedBy),
		CreatedAt:           wf.CreatedAt.UTC(),
		UpdatedAt:           updatedAt.UTC(),
	}
	signers := make([]WorkflowSignerModel, 0, len(wf.Signers))
	for _, s := range wf.Signers {
		id := s.ID
		if id == "" {
			id = newUUID()
		}
		signers = append(signers, WorkflowSignerModel{
			ID:           id,
			WorkflowID:   wf.ID,
			SignerID:     s.SignerID,
			Name:         s.Name,
			Email:        s.Email,
			Role:         s.Role,
			SigningOrder: s.Order,
			Required:     s.Required,
			Status:       string(s.Status),
			SignedAt:     utcPtr(s.SignedAt),
			SignatureID:  stringPtrIfNotEmpty(s.SignatureID),
		})
	}
	return model, signers
}

func workflowFromModel(model WorkflowModel) *domain.SignatureWorkflow {
	wf := &domain.SignatureWorkflow{
		ID: model.ID,
		Document: domain.DocumentRef{
			Type:     model.DocumentType,
			ID:       model.DocumentID,
			TenantID: model.TenantID,
		},
		RequesterID:         model.RequesterID,
		RequesterName:       model.RequesterName,
		Status:              domain.WorkflowStatus(model.Status),
		TotalSigners:        model.TotalSigners,
		CompletedSignatures: model.CompletedSignatures,
		DueDate:             utcPtr(model.DueDate),
		CompletedAt:         utcPtr(model.CompletedAt),
		VoidedAt:            utcPtr(model.VoidedAt),
		VoidReason:          stringValue(model.VoidReason),
		VoidedBy:            stringValue(model.VoidedBy),
		CreatedAt:           model.CreatedAt.UTC(),
		UpdatedAt:           model.UpdatedAt.UTC(),
		Signers:             make([]domain.Signer, 0, len(model.Signers)),
	}
	for _, s := range model.Signers {
		wf.Signers = append(wf.Signers, domain.Signer{
			ID:          s.ID,
			WorkflowID:  s.WorkflowID,
			SignerID:    s.SignerID,
			Name:        s.Name,
			Email:       s.Email,
			Role:        s.Role,
			Order:       s.SigningOrder,
			Required:    s.Required,
			Status:      domain.SignerStatus(s.Status),
			SignedAt:    utcPtr(s.SignedAt),
			SignatureID: stringValue(s.SignatureID),
		})
	}
	return wf
}
