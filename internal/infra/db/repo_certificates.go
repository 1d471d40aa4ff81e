package db

import (
	"context"
	"errors"
	"time"

	"docsign/internal/domain"

	"gorm.io/gorm"
)

type CertificateRepository struct {
	db *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

func (r *CertificateRepository) Create(ctx context.Context, cert domain.StoredCertificate) error {
	if r.db == nil {
		return errDBUnavailable
	}
	if cert.ID == "" {
		cert.ID = newUUID()
	}
	if cert.Status == "" {
		cert.Status = domain.CertificateStatusActive
	}
	if cert.CreatedAt.IsZero() {
		cert.CreatedAt = time.Now().UTC()
	}
	model := certificateModelFromDomain(cert)
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateCertificate
		}
		return err
	}
	return nil
}

func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*domain.StoredCertificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var model CertificateModel
	if err := r.db.WithContext(ctx).Where("id = ?", key).First(&model).Error; err != nil {
		return nil, translateNotFound(err, domain.ErrNotFound)
	}
	return certificateFromModel(model), nil
}

func (r *CertificateRepository) GetByFingerprint(ctx context.Context, signerID, fingerprint string) (*domain.StoredCertificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model CertificateModel
	err := r.db.WithContext(ctx).
		Where("signer_id = ? AND fingerprint = ?", signerID, fingerprint).
		First(&model).Error
	if err != nil {
		return nil, translateNotFound(err, domain.ErrNotFound)
	}
	return certificateFromModel(model), nil
}

func (r *CertificateRepository) FindActive(ctx context.Context, signerID, tenantID string, now time.Time) (*domain.StoredCertificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	query := r.db.WithContext(ctx).
		Where("signer_id = ? AND status = ? AND not_after >= ?", signerID, string(domain.CertificateStatusActive), now.UTC())
	if tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	var model CertificateModel
	if err := query.Order("not_after DESC").Order("created_at DESC").First(&model).Error; err != nil {
		return nil, translateNotFound(err, domain.ErrNotFound)
	}
	return certificateFromModel(model), nil
}

// Revoke only updates rows still active, so the first reason and timestamp win.
func (r *CertificateRepository) Revoke(ctx context.Context, id, reason string, at time.Time) (*domain.StoredCertificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	key, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var out *domain.StoredCertificate
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&CertificateModel{}).
			Where("id = ? AND status = ?", key, string(domain.CertificateStatusActive)).
			Updates(map[string]any{
				"status":            string(domain.CertificateStatusRevoked),
				"revoked_at":        at.UTC(),
				"revocation_reason": reason,
			}).Error; err != nil {
			return err
		}
		var model CertificateModel
		if err := tx.Where("id = ?", key).First(&model).Error; err != nil {
			return translateNotFound(err, domain.ErrNotFound)
		}
		out = certificateFromModel(model)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CertificateRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]domain.StoredCertificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []CertificateModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND not_after >= ? AND not_after <= ?", string(domain.CertificateStatusActive), from.UTC(), to.UTC()).
		Order("not_after ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.StoredCertificate, 0, len(models))
	for _, model := range models {
		out = append(out, *certificateFromModel(model))
	}
	return out, nil
}

func certificateModelFromDomain(cert domain.StoredCertificate) CertificateModel {
	keyUsage := cert.Info.KeyUsage
	if keyUsage == nil {
		keyUsage = []string{}
	}
	return CertificateModel{
		ID:               cert.ID,
		SignerID:         cert.SignerID,
		TenantID:         cert.TenantID,
		Subject:          cert.Info.Subject,
		Issuer:           cert.Info.Issuer,
		SerialNumber:     cert.Info.SerialNumber,
		NotBefore:        cert.Info.NotBefore.UTC(),
		NotAfter:         cert.Info.NotAfter.UTC(),
		Fingerprint:      cert.Info.Fingerprint,
		PublicKeyPEM:     cert.Info.PublicKeyPEM,
		KeyUsage:         keyUsage,
		CertificatePEM:   cert.PEM,
		Status:           string(cert.Status),
		RevokedAt:        utcPtr(cert.RevokedAt),
		RevocationReason: stringPtrIfNotEmpty(cert.RevocationReason),
		CreatedAt:        cert.CreatedAt.UTC(),
	}
}

func certificateFromModel(model CertificateModel) *domain.StoredCertificate {
	return &domain.StoredCertificate{
		ID:       model.ID,
		SignerID: model.SignerID,
		TenantID: model.TenantID,
		Info: domain.CertificateInfo{
			Subject:      model.Subject,
			Issuer:       model.Issuer,
			SerialNumber: model.SerialNumber,
			NotBefore:    model.NotBefore.UTC(),
			NotAfter:     model.NotAfter.UTC(),
			Fingerprint:  model.Fingerprint,
			PublicKeyPEM: model.PublicKeyPEM,
			KeyUsage:     model.KeyUsage,
		},
		PEM:              model.CertificatePEM,
		Status:           domain.CertificateStatus(model.Status),
		RevokedAt:        utcPtr(model.RevokedAt),
		RevocationReason: stringValue(model.RevocationReason),
		CreatedAt:        model.CreatedAt.UTC(),
	}
}
