package usecase

import (
	"context"
	"time"

	"docsign/internal/domain"
)

type Clock func() time.Time

type CertificateRepository interface {
	// Create fails with domain.ErrDuplicateCertificate when the signer already holds the fingerprint.
	Create(ctx context.Context, cert domain.StoredCertificate) error
	GetByID(ctx context.Context, id string) (*domain.StoredCertificate, error)
	GetByFingerprint(ctx context.Context, signerID, fingerprint string) (*domain.StoredCertificate, error)
	// FindActive returns the unrevoked certificate with the latest not-after that is
	// still valid at now. An empty tenantID matches any tenant.
	FindActive(ctx context.Context, signerID, tenantID string, now time.Time) (*domain.StoredCertificate, error)
	// Revoke flips status to revoked once; later calls leave the first revocation intact.
	Revoke(ctx context.Context, id, reason string, at time.Time) (*domain.StoredCertificate, error)
	// ListExpiring returns unrevoked certificates with not-after in [from, to], soonest first.
	ListExpiring(ctx context.Context, from, to time.Time) ([]domain.StoredCertificate, error)
}

type SignatureRepository interface {
	// Create fails with domain.ErrDuplicateSignature when a signed record already
	// exists for the same document and signer.
	Create(ctx context.Context, sig domain.Signature) error
	GetByID(ctx context.Context, id string) (*domain.Signature, error)
	FindSigned(ctx context.Context, doc domain.DocumentRef, signerID string) (*domain.Signature, error)
	// ListByDocument orders by signing time. Empty tenantID or status match everything.
	ListByDocument(ctx context.Context, documentID, tenantID string, status domain.SignatureStatus) ([]domain.Signature, error)
	// Transition moves a signed record to a terminal status, failing with
	// domain.ErrSignatureFinalized when it already left signed.
	Transition(ctx context.Context, id string, to domain.SignatureStatus, reason, actor string, at time.Time) (*domain.Signature, error)
	MarkVerified(ctx context.Context, id, method string, at time.Time) error
}

type WorkflowRepository interface {
	Create(ctx context.Context, wf domain.SignatureWorkflow) error
	GetByID(ctx context.Context, id string) (*domain.SignatureWorkflow, error)
	// ListBySigner returns every workflow the signer participates in, signers included.
	ListBySigner(ctx context.Context, signerID, tenantID string, status domain.WorkflowStatus) ([]domain.SignatureWorkflow, error)
	ListOverdueIDs(ctx context.Context, now time.Time) ([]string, error)
	// GetForUpdate loads the workflow and holds it locked until the enclosing WithTx returns.
	GetForUpdate(ctx context.Context, id string) (*domain.SignatureWorkflow, error)
	// Update persists the workflow row and every signer row.
	Update(ctx context.Context, wf domain.SignatureWorkflow) error
	WithTx(ctx context.Context, fn func(repo WorkflowRepository) error) error
}

type AuditEventRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	ListByTarget(ctx context.Context, targetType domain.AuditTargetType, targetID string) ([]domain.AuditEvent, error)
}

// CertificateProvider is what signing needs from certificate management.
type CertificateProvider interface {
	GetUserCertificate(ctx context.Context, signerID, tenantID string) (*domain.StoredCertificate, error)
}

type IdentityLookup interface {
	LookupEmail(ctx context.Context, signerID, tenantID string) (string, error)
}

type Notifier interface {
	WorkflowCompleted(ctx context.Context, wf domain.SignatureWorkflow) error
	CertificateExpiring(ctx context.Context, cert domain.StoredCertificate, daysLeft int) error
}

type PolicyEngine interface {
	EvaluateIntegrity(ctx context.Context, input domain.PolicyInput) (domain.PolicyEvaluation, error)
}

type CryptoService interface {
	HashDocument(content []byte) string
	HashDocumentReference(doc domain.DocumentRef) string
	HashesEqual(a, b string) bool
	ParseCertificate(pemData []byte) (domain.CertificateInfo, error)
	NormalizeFingerprint(value string) (string, error)
	SignDocumentHash(privateKeyPEM []byte, passphrase []byte, documentHash string, certificatePublicKeyPEM string) (string, error)
	VerifyDocumentHash(publicKeyPEM string, documentHash string, signatureB64 string) error
}
