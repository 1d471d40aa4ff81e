package db

import (
	"context"
	"errors"
	"time"

	"docsign/internal/domain"

	"gorm.io/gorm"
)

type SignatureRepository struct {
	db *gorm.DB
}

func NewSignatureRepository(db *gorm.DB) *SignatureRepository {
	return &SignatureRepository{db: db}
}

// Create relies on signatures_one_signed_per_signer to reject a second signed
// record for the same document and signer.
func (r *SignatureRepository) Create(ctx context.Context, sig domain.Signature) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if sig.ID == "" {
		sig.ID = newUUID()
	}
	if sig.SignedAt.IsZero() {
		sig.SignedAt = time.Now().UTC()
	}
	model := signatureModelFromDomain(sig)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateSignature
		}
		return err
	}
	return nil
}

func (r *SignatureRepository) GetByID(ctx context.Context, id string) (*domain.Signature, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var model SignatureModel
	if err := r.db.WithContext(ctx).Where("id = ?", key).First(&model).Error; err != nil {
		return nil, translateNotFound(err, domain.ErrNotFound)
	}
	return signatureFromModel(model), nil
}

func (r *SignatureRepository) FindSigned(ctx context.Context, doc domain.DocumentRef, signerID string) (*domain.Signature, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model SignatureModel
	err := r.db.WithContext(ctx).
		Where("document_type = ? AND document_id = ? AND tenant_id = ? AND signer_id = ? AND signature_status = ?",
			doc.Type, doc.ID, doc.TenantID, signerID, string(domain.SignatureStatusSigned)).
		First(&model).Error
	if err != nil {
		return nil, translateNotFound(err, domain.ErrNotFound)
	}
	return signatureFromModel(model), nil
}

func (r *SignatureRepository) ListByDocument(ctx context.Context, documentID, tenantID string, status domain.SignatureStatus) ([]domain.Signature, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).Where("document_id = ?", documentID)
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if status != "" {
		query = query.Where("signature_status = ?", string(status))
	}
	var models []SignatureModel
	if err := query.Order("signed_at ASC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Signature, 0, len(models))
	for _, model := range models {
		out = append(out, *signatureFromModel(model))
	}
	return out, nil
}

// Transition is a conditional update on signature_status so two concurrent
// finalizations cannot both succeed.
func (r *SignatureRepository) Transition(ctx context.Context, id string, to domain.SignatureStatus, reason, actor string, at time.Time) (*domain.Signature, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var out *domain.Signature
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&SignatureModel{}).
			Where("id = ? AND signature_status = ?", key, string(domain.SignatureStatusSigned)).
			Updates(map[string]any{
				"signature_status":  string(to),
				"status_reason":     reason,
				"status_actor":      actor,
				"status_changed_at": at.UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		var model SignatureModel
		if err := tx.Where("id = ?", key).First(&model).Error; err != nil {
			return translateNotFound(err, domain.ErrNotFound)
		}
		if res.RowsAffected == 0 {
			return domain.ErrSignatureFinalized
		}
		out = signatureFromModel(model)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SignatureRepository) MarkVerified(ctx context.Context, id, method string, at time.Time) error {
	if r.db == nil {
		return errDBUnavailable
	}
	key, err := parseID(id)
	if err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Model(&SignatureModel{}).
		Where("id = ? AND signature_status = ? AND verified = ?", key, string(domain.SignatureStatusSigned), false).
		Updates(map[string]any{
			"verified":      true,
			"verified_at":   at.UTC(),
			"verify_method": method,
		})
	return res.Error
}

func signatureModelFromDomain(sig domain.Signature) SignatureModel {
	return SignatureModel{
		ID:              sig.ID,
		DocumentType:    sig.Document.Type,
		DocumentID:      sig.Document.ID,
		TenantID:        sig.Document.TenantID,
		DocumentHash:    sig.DocumentHash,
		SignatureKind:   string(sig.Kind),
		SignatureStatus: string(sig.Status),
		SignerID:        sig.SignerID,
		SignerName:      sig.SignerName,
		SignerEmail:     sig.SignerEmail,
		SignerRole:      sig.SignerRole,
		Certificate:     sig.Certificate,
		Algorithm:       sig.Algorithm,
		SignatureValue:  sig.Value,
		Verified:        sig.Verified,
		VerifiedAt:      utcPtr(sig.VerifiedAt),
		VerifyMethod:    stringPtrIfNotEmpty(sig.VerifyMethod),
		Provenance:      sig.Provenance,
		SignedAt:        sig.SignedAt.UTC(),
		StatusReason:    stringPtrIfNotEmpty(sig.StatusReason),
		StatusActor:     stringPtrIfNotEmpty(sig.StatusActor),
		StatusChangedAt: utcPtr(sig.StatusChangeAt),
	}
}

func signatureFromModel(model SignatureModel) *domain.Signature {
	return &domain.Signature{
		ID: model.ID,
		Document: domain.DocumentRef{
			Type:     model.DocumentType,
			ID:       model.DocumentID,
			TenantID: model.TenantID,
		},
		DocumentHash:   model.DocumentHash,
		Kind:           domain.SignatureKind(model.SignatureKind),
		Status:         domain.SignatureStatus(model.SignatureStatus),
		SignerID:       model.SignerID,
		SignerName:     model.SignerName,
		SignerEmail:    model.SignerEmail,
		SignerRole:     model.SignerRole,
		Certificate:    model.Certificate,
		Algorithm:      model.Algorithm,
		Value:          model.SignatureValue,
		Verified:       model.Verified,
		VerifiedAt:     utcPtr(model.VerifiedAt),
		VerifyMethod:   stringValue(model.VerifyMethod),
		Provenance:     model.Provenance,
		SignedAt:       model.SignedAt.UTC(),
		StatusReason:   stringValue(model.StatusReason),
		StatusActor:    stringValue(model.StatusActor),
		StatusChangeAt: utcPtr(model.StatusChangedAt),
	}
}
