package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"docsign/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SignatureService issues signatures and runs multi-party signing workflows.
type SignatureService struct {
	Certificates CertificateProvider
	Signatures   SignatureRepository
	Workflows    WorkflowRepository
	Identity     IdentityLookup
	Notifier     Notifier
	Crypto       CryptoService
	Audit        *AuditEmitter
	Logger       *zap.Logger
	Clock        Clock
	NewID        func() string
}

func NewSignatureService(certs CertificateProvider, signatures SignatureRepository, workflows WorkflowRepository, crypto CryptoService, logger *zap.Logger, clock Clock) *SignatureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignatureService{
		Certificates: certs,
		Signatures:   signatures,
		Workflows:    workflows,
		Crypto:       crypto,
		Logger:       logger.With(zap.String("service", "signatures")),
		Clock:        clock,
		NewID:        uuid.NewString,
	}
}

type SignRequest struct {
	Document    domain.DocumentRef
	SignerID    string
	SignerName  string
	SignerEmail string
	SignerRole  string
	Provenance  domain.Provenance
}

type SignWithKeyRequest struct {
	SignRequest
	Content       []byte
	PrivateKeyPEM []byte
	Passphrase    []byte
}

func (s *SignatureService) HashDocument(content []byte) string {
	return s.Crypto.HashDocument(content)
}

// HashDocumentReference hashes the document identity only. It proves which
// document was attested, not what the document contained.
func (s *SignatureService) HashDocumentReference(docType, docID, tenantID string) string {
	return s.Crypto.HashDocumentReference(domain.DocumentRef{Type: docType, ID: docID, TenantID: tenantID})
}

// SignDocument records an attestation signature. The stored value is the
// ATTESTATION marker and carries no cryptographic guarantee.
func (s *SignatureService) SignDocument(ctx context.Context, req SignRequest) (domain.SignatureResult, error) {
	cert, err := s.prepareSign(ctx, req)
	if err != nil {
		return domain.SignatureResult{}, err
	}
	sig := s.newSignature(req, *cert)
	sig.Kind = domain.SignatureKindAttestation
	sig.DocumentHash = s.Crypto.HashDocumentReference(req.Document)
	sig.Algorithm = domain.AlgorithmAttestation
	sig.Value = domain.AttestationValue
	return s.persist(ctx, sig)
}

// SignDocumentWithKey hashes the content and signs the hash with the signer's
// RSA key. The key must belong to the signer's active certificate.
func (s *SignatureService) SignDocumentWithKey(ctx context.Context, req SignWithKeyRequest) (domain.SignatureResult, error) {
	if req.Content == nil {
		return domain.SignatureResult{}, fmt.Errorf("%w: document content is required", domain.ErrInvalidInput)
	}
	if len(req.PrivateKeyPEM) == 0 {
		return domain.SignatureResult{}, fmt.Errorf("%w: private key is required", domain.ErrInvalidPrivateKey)
	}
	cert, err := s.prepareSign(ctx, req.SignRequest)
	if err != nil {
		return domain.SignatureResult{}, err
	}
	hash := s.Crypto.HashDocument(req.Content)
	value, err := s.Crypto.SignDocumentHash(req.PrivateKeyPEM, req.Passphrase, hash, cert.Info.PublicKeyPEM)
	if err != nil {
		return domain.SignatureResult{}, err
	}
	sig := s.newSignature(req.SignRequest, *cert)
	sig.Kind = domain.SignatureKindCryptographic
	sig.DocumentHash = hash
	sig.Algorithm = domain.AlgorithmRSASHA512
	sig.Value = value
	return s.persist(ctx, sig)
}

func (s *SignatureService) GetSignature(ctx context.Context, id string) (domain.Signature, error) {
	if s == nil || s.Signatures == nil {
		return domain.Signature{}, errors.New("signature repository is required")
	}
	sig, err := s.Signatures.GetByID(ctx, id)
	if err != nil {
		return domain.Signature{}, err
	}
	return *sig, nil
}

func (s *SignatureService) GetDocumentSignatures(ctx context.Context, documentID, tenantID string) ([]domain.SignatureSummary, error) {
	if s == nil || s.Signatures == nil {
		return nil, errors.New("signature repository is required")
	}
	sigs, err := s.Signatures.ListByDocument(ctx, documentID, tenantID, "")
	if err != nil {
		return nil, err
	}
	out := make([]domain.SignatureSummary, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, domain.SummaryOf(sig))
	}
	return out, nil
}

func (s *SignatureService) RejectSignature(ctx context.Context, signatureID, reason, rejectedBy string) (domain.Signature, error) {
	return s.finalize(ctx, signatureID, domain.SignatureStatusRejected, reason, rejectedBy)
}

func (s *SignatureService) RevokeSignature(ctx context.Context, signatureID, reason, revokedBy string) (domain.Signature, error) {
	return s.finalize(ctx, signatureID, domain.SignatureStatusRevoked, reason, revokedBy)
}

func (s *SignatureService) finalize(ctx context.Context, signatureID string, to domain.SignatureStatus, reason, actor string) (domain.Signature, error) {
	if s == nil || s.Signatures == nil {
		return domain.Signature{}, errors.New("signature repository is required")
	}
	if strings.TrimSpace(reason) == "" {
		return domain.Signature{}, fmt.Errorf("%w: reason is required", domain.ErrInvalidInput)
	}
	sig, err := s.Signatures.Transition(ctx, signatureID, to, reason, actor, s.now())
	if err != nil {
		return domain.Signature{}, err
	}
	eventType := domain.AuditEventSignatureRejected
	if to == domain.SignatureStatusRevoked {
		eventType = domain.AuditEventSignatureRevoked
	}
	s.log().Info("signature finalized",
		zap.String("signature_id", sig.ID),
		zap.String("status", string(to)),
	)
	s.Audit.Record(ctx, sig.Document.TenantID, actor, eventType, domain.AuditTargetSignature, sig.ID, domain.AuditDetails{
		DocumentType: sig.Document.Type,
		DocumentID:   sig.Document.ID,
		Reason:       reason,
		Status:       string(to),
	})
	return *sig, nil
}

// prepareSign resolves the active certificate and rejects duplicates before any write.
func (s *SignatureService) prepareSign(ctx context.Context, req SignRequest) (*domain.StoredCertificate, error) {
	if s == nil || s.Signatures == nil {
		return nil, errors.New("signature repository is required")
	}
	if s.Certificates == nil {
		return nil, errors.New("certificate provider is required")
	}
	if s.Crypto == nil {
		return nil, errors.New("crypto service is required")
	}
	if err := validateDocument(req.Document); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.SignerID) == "" {
		return nil, fmt.Errorf("%w: signer_id is required", domain.ErrInvalidInput)
	}
	cert, err := s.Certificates.GetUserCertificate(ctx, req.SignerID, req.Document.TenantID)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, domain.ErrNoCertificate
	}
	existing, err := s.Signatures.FindSigned(ctx, req.Document, req.SignerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrDuplicateSignature
	}
	return cert, nil
}

func (s *SignatureService) newSignature(req SignRequest, cert domain.StoredCertificate) domain.Signature {
	name := req.SignerName
	if name == "" {
		name = cert.Info.Subject.CommonName
	}
	email := req.SignerEmail
	if email == "" {
		email = cert.Info.Subject.Email
	}
	return domain.Signature{
		ID:          s.newID(),
		Document:    req.Document,
		Status:      domain.SignatureStatusSigned,
		SignerID:    req.SignerID,
		SignerName:  name,
		SignerEmail: email,
		SignerRole:  req.SignerRole,
		Certificate: domain.SnapshotOf(cert),
		Provenance:  req.Provenance,
		SignedAt:    s.now(),
	}
}

func (s *SignatureService) persist(ctx context.Context, sig domain.Signature) (domain.SignatureResult, error) {
	if err := s.Signatures.Create(ctx, sig); err != nil {
		return domain.SignatureResult{}, err
	}
	s.log().Info("signature created",
		zap.String("signature_id", sig.ID),
		zap.String("document_id", sig.Document.ID),
		zap.String("kind", string(sig.Kind)),
	)
	s.Audit.Record(ctx, sig.Document.TenantID, sig.SignerID, domain.AuditEventSignatureCreated, domain.AuditTargetSignature, sig.ID, domain.AuditDetails{
		DocumentType: sig.Document.Type,
		DocumentID:   sig.Document.ID,
		Fingerprint:  sig.Certificate.Fingerprint,
		Kind:         string(sig.Kind),
	})
	return domain.SignatureResult{
		SignatureID:   sig.ID,
		DocumentHash:  sig.DocumentHash,
		Kind:          sig.Kind,
		Status:        sig.Status,
		Algorithm:     sig.Algorithm,
		Value:         sig.Value,
		Fingerprint:   sig.Certificate.Fingerprint,
		CertificateID: sig.Certificate.CertificateID,
		SignedAt:      sig.SignedAt,
	}, nil
}

func validateDocument(doc domain.DocumentRef) error {
	if strings.TrimSpace(doc.Type) == "" || strings.TrimSpace(doc.ID) == "" || strings.TrimSpace(doc.TenantID) == "" {
		return fmt.Errorf("%w: document type, id and tenant are required", domain.ErrInvalidInput)
	}
	return nil
}

func (s *SignatureService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *SignatureService) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *SignatureService) log() *zap.Logger {
	if s == nil || s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
