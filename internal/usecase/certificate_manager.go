package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"docsign/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultMinValidityDays  = 30
	DefaultExpiryNoticeDays = 30
)

// SigningKeyUsages are the key usages a stored signing certificate must carry at least one of.
var SigningKeyUsages = []string{domain.KeyUsageDigitalSignature, domain.KeyUsageNonRepudiation}

type CertificateManager struct {
	Certificates    CertificateRepository
	Crypto          CryptoService
	Notifier        Notifier
	Audit           *AuditEmitter
	Logger          *zap.Logger
	Clock           Clock
	NewID           func() string
	MinValidityDays int
}

func NewCertificateManager(certs CertificateRepository, crypto CryptoService, logger *zap.Logger, clock Clock) *CertificateManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CertificateManager{
		Certificates:    certs,
		Crypto:          crypto,
		Logger:          logger.With(zap.String("service", "certificates")),
		Clock:           clock,
		NewID:           uuid.NewString,
		MinValidityDays: DefaultMinValidityDays,
	}
}

func (m *CertificateManager) ParseCertificate(pemData []byte) (domain.CertificateInfo, error) {
	if m == nil || m.Crypto == nil {
		return domain.CertificateInfo{}, errors.New("crypto service is required")
	}
	return m.Crypto.ParseCertificate(pemData)
}

// ValidateCertificate never fails; every problem is itemized in the result.
func (m *CertificateManager) ValidateCertificate(pemData []byte, opts domain.ValidationOptions) domain.ValidationResult {
	result := domain.ValidationResult{
		Errors:   []domain.ValidationIssue{},
		Warnings: []domain.ValidationIssue{},
	}
	info, err := m.ParseCertificate(pemData)
	if err != nil {
		result.Errors = append(result.Errors, domain.ValidationIssue{
			Code:    domain.ValidationMalformed,
			Message: err.Error(),
		})
		return result
	}
	result.Certificate = &info

	now := m.now()
	notYetValid, expired := info.ValidityAt(now)
	switch {
	case notYetValid:
		result.Errors = append(result.Errors, domain.ValidationIssue{
			Code:    domain.ValidationNotYetValid,
			Message: fmt.Sprintf("certificate is not valid before %s", info.NotBefore.Format(time.RFC3339)),
		})
	case expired:
		result.Errors = append(result.Errors, domain.ValidationIssue{
			Code:    domain.ValidationExpired,
			Message: fmt.Sprintf("certificate expired at %s", info.NotAfter.Format(time.RFC3339)),
		})
	default:
		minDays := opts.MinValidityDays
		if minDays <= 0 {
			minDays = m.minValidityDays()
		}
		remaining := daysUntil(now, info.NotAfter)
		if remaining < minDays {
			result.Warnings = append(result.Warnings, domain.ValidationIssue{
				Code:    domain.ValidationExpiringSoon,
				Message: fmt.Sprintf("certificate expires in %d days (minimum %d)", remaining, minDays),
			})
		}
	}

	if strings.TrimSpace(info.Subject.CommonName) == "" {
		result.Errors = append(result.Errors, domain.ValidationIssue{
			Code:    domain.ValidationMissingCommonName,
			Message: "subject common name is required",
		})
	}
	if opts.RequireOrgName && strings.TrimSpace(info.Subject.Organization) == "" {
		result.Errors = append(result.Errors, domain.ValidationIssue{
			Code:    domain.ValidationMissingOrg,
			Message: "subject organization is required",
		})
	}
	if opts.RequireEmail && strings.TrimSpace(info.Subject.Email) == "" {
		result.Errors = append(result.Errors, domain.ValidationIssue{
			Code:    domain.ValidationMissingEmail,
			Message: "subject email address is required",
		})
	}
	if len(opts.AllowedKeyUsages) > 0 && !intersects(info.KeyUsage, opts.AllowedKeyUsages) {
		result.Errors = append(result.Errors, domain.ValidationIssue{
			Code:    domain.ValidationKeyUsage,
			Message: fmt.Sprintf("key usage must include one of %s", strings.Join(opts.AllowedKeyUsages, ", ")),
		})
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

func (m *CertificateManager) StoreCertificate(ctx context.Context, signerID, tenantID string, pemData []byte) (domain.StoredCertificate, error) {
	if m == nil || m.Certificates == nil {
		return domain.StoredCertificate{}, errors.New("certificate repository is required")
	}
	if strings.TrimSpace(signerID) == "" || strings.TrimSpace(tenantID) == "" {
		return domain.StoredCertificate{}, fmt.Errorf("%w: signer_id and tenant_id are required", domain.ErrInvalidInput)
	}
	result := m.ValidateCertificate(pemData, domain.ValidationOptions{
		RequireOrgName:   true,
		MinValidityDays:  m.minValidityDays(),
		AllowedKeyUsages: SigningKeyUsages,
	})
	if !result.IsValid {
		return domain.StoredCertificate{}, &domain.CertificateValidationError{Result: result}
	}
	info := *result.Certificate

	existing, err := m.Certificates.GetByFingerprint(ctx, signerID, info.Fingerprint)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.StoredCertificate{}, err
	}
	if existing != nil {
		return domain.StoredCertificate{}, domain.ErrDuplicateCertificate
	}

	cert := domain.StoredCertificate{
		ID:        m.newID(),
		SignerID:  signerID,
		TenantID:  tenantID,
		Info:      info,
		PEM:       strings.TrimSpace(string(pemData)) + "\n",
		Status:    domain.CertificateStatusActive,
		CreatedAt: m.now(),
	}
	if err := m.Certificates.Create(ctx, cert); err != nil {
		return domain.StoredCertificate{}, err
	}
	for _, warning := range result.Warnings {
		m.log().Warn("certificate stored with warning",
			zap.String("certificate_id", cert.ID),
			zap.String("code", string(warning.Code)),
		)
	}
	m.log().Info("certificate stored",
		zap.String("certificate_id", cert.ID),
		zap.String("tenant_id", tenantID),
		zap.String("fingerprint", info.Fingerprint),
	)
	m.Audit.Record(ctx, tenantID, signerID, domain.AuditEventCertificateStored, domain.AuditTargetCertificate, cert.ID, domain.AuditDetails{
		Fingerprint: info.Fingerprint,
	})
	return cert, nil
}

func (m *CertificateManager) GetCertificate(ctx context.Context, id string) (domain.StoredCertificate, error) {
	if m == nil || m.Certificates == nil {
		return domain.StoredCertificate{}, errors.New("certificate repository is required")
	}
	cert, err := m.Certificates.GetByID(ctx, id)
	if err != nil {
		return domain.StoredCertificate{}, err
	}
	return *cert, nil
}

// GetUserCertificate returns nil without error when the signer has no active certificate.
func (m *CertificateManager) GetUserCertificate(ctx context.Context, signerID, tenantID string) (*domain.StoredCertificate, error) {
	if m == nil || m.Certificates == nil {
		return nil, errors.New("certificate repository is required")
	}
	cert, err := m.Certificates.FindActive(ctx, signerID, tenantID, m.now())
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cert, nil
}

func (m *CertificateManager) RevokeCertificate(ctx context.Context, certID, reason, revokedBy string) (domain.StoredCertificate, error) {
	if m == nil || m.Certificates == nil {
		return domain.StoredCertificate{}, errors.New("certificate repository is required")
	}
	if strings.TrimSpace(reason) == "" {
		return domain.StoredCertificate{}, fmt.Errorf("%w: revocation reason is required", domain.ErrInvalidInput)
	}
	current, err := m.Certificates.GetByID(ctx, certID)
	if err != nil {
		return domain.StoredCertificate{}, err
	}
	if current.Status == domain.CertificateStatusRevoked {
		return *current, nil
	}
	cert, err := m.Certificates.Revoke(ctx, certID, reason, m.now())
	if err != nil {
		return domain.StoredCertificate{}, err
	}
	m.log().Info("certificate revoked",
		zap.String("certificate_id", cert.ID),
		zap.String("tenant_id", cert.TenantID),
	)
	m.Audit.Record(ctx, cert.TenantID, revokedBy, domain.AuditEventCertificateRevoked, domain.AuditTargetCertificate, cert.ID, domain.AuditDetails{
		Fingerprint: cert.Info.Fingerprint,
		Reason:      reason,
	})
	return *cert, nil
}

func (m *CertificateManager) GetExpiringCertificates(ctx context.Context, daysUntilExpiry int) ([]domain.StoredCertificate, error) {
	if m == nil || m.Certificates == nil {
		return nil, errors.New("certificate repository is required")
	}
	if daysUntilExpiry <= 0 {
		daysUntilExpiry = DefaultExpiryNoticeDays
	}
	now := m.now()
	return m.Certificates.ListExpiring(ctx, now, now.AddDate(0, 0, daysUntilExpiry))
}

// NotifyExpiringCertificates sends one renewal notice per expiring certificate and
// returns how many were delivered. A failed notice does not stop the rest.
func (m *CertificateManager) NotifyExpiringCertificates(ctx context.Context, daysUntilExpiry int) (int, error) {
	if m == nil || m.Notifier == nil {
		return 0, errors.New("notifier is required")
	}
	certs, err := m.GetExpiringCertificates(ctx, daysUntilExpiry)
	if err != nil {
		return 0, err
	}
	now := m.now()
	sent := 0
	for _, cert := range certs {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := m.Notifier.CertificateExpiring(ctx, cert, daysUntil(now, cert.Info.NotAfter)); err != nil {
			m.log().Warn("expiry notice failed",
				zap.String("certificate_id", cert.ID),
				zap.Error(err),
			)
			continue
		}
		sent++
	}
	m.log().Info("expiry notices sent", zap.Int("candidates", len(certs)), zap.Int("sent", sent))
	return sent, nil
}

func (m *CertificateManager) minValidityDays() int {
	if m != nil && m.MinValidityDays > 0 {
		return m.MinValidityDays
	}
	return DefaultMinValidityDays
}

func (m *CertificateManager) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.NewString()
}

func (m *CertificateManager) now() time.Time {
	if m != nil && m.Clock != nil {
		return m.Clock().UTC()
	}
	return time.Now().UTC()
}

// daysUntil floors the remaining time to whole days.
func daysUntil(now, t time.Time) int {
	return int(math.Floor(t.Sub(now).Hours() / 24))
}

func intersects(have, allowed []string) bool {
	for _, a := range allowed {
		for _, h := range have {
			if strings.EqualFold(a, h) {
				return true
			}
		}
	}
	return false
}

func (m *CertificateManager) log() *zap.Logger {
	if m == nil || m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}
