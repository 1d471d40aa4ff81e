package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"docsign/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultVerifyConcurrency = 8
	MaxBulkVerify            = 500
)

const attestationWarning = "attestation signature: no cryptographic check is possible"

// VerificationService re-derives trust from stored state. It never changes
// workflow state; the only write is advisory verification bookkeeping.
type VerificationService struct {
	Signatures   SignatureRepository
	Certificates CertificateRepository
	Crypto       CryptoService
	Policy       PolicyEngine
	Logger       *zap.Logger
	Clock        Clock
	Concurrency  int

	trusted map[string]struct{}
}

// NewVerificationService fixes the trust anchor set at construction.
// Fingerprints that cannot be normalized are dropped with a warning.
func NewVerificationService(signatures SignatureRepository, certs CertificateRepository, crypto CryptoService, trustedFingerprints []string, logger *zap.Logger, clock Clock) *VerificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("service", "verification"))
	trusted := make(map[string]struct{}, len(trustedFingerprints))
	for _, fp := range trustedFingerprints {
		if crypto == nil {
			break
		}
		normalized, err := crypto.NormalizeFingerprint(fp)
		if err != nil {
			logger.Warn("ignoring malformed trusted fingerprint", zap.Error(err))
			continue
		}
		trusted[normalized] = struct{}{}
	}
	return &VerificationService{
		Signatures:   signatures,
		Certificates: certs,
		Crypto:       crypto,
		Logger:       logger,
		Clock:        clock,
		Concurrency:  DefaultVerifyConcurrency,
		trusted:      trusted,
	}
}

// SignatureAccess rejects a loaded signature the caller may not see. It runs
// before any verification bookkeeping is written.
type SignatureAccess func(sig domain.Signature) error

// VerifySignature checks one signature. A nil content skips the hash
// comparison. Only a missing record is returned as an error.
func (s *VerificationService) VerifySignature(ctx context.Context, signatureID string, content []byte) (domain.VerificationResult, error) {
	return s.VerifySignatureChecked(ctx, signatureID, content, nil)
}

// VerifySignatureChecked is VerifySignature with an access check on the
// loaded record; a denial is returned unchanged.
func (s *VerificationService) VerifySignatureChecked(ctx context.Context, signatureID string, content []byte, access SignatureAccess) (domain.VerificationResult, error) {
	if s == nil || s.Signatures == nil {
		return domain.VerificationResult{}, errors.New("signature repository is required")
	}
	if s.Crypto == nil {
		return domain.VerificationResult{}, errors.New("crypto service is required")
	}
	sig, err := s.load(ctx, signatureID, access)
	if err != nil {
		return domain.VerificationResult{}, err
	}
	return s.verify(ctx, *sig, content), nil
}

func (s *VerificationService) load(ctx context.Context, signatureID string, access SignatureAccess) (*domain.Signature, error) {
	sig, err := s.Signatures.GetByID(ctx, signatureID)
	if err != nil {
		return nil, err
	}
	if access != nil {
		if err := access(*sig); err != nil {
			return nil, err
		}
	}
	return sig, nil
}

func (s *VerificationService) verify(ctx context.Context, sig domain.Signature, content []byte) domain.VerificationResult {
	now := s.now()
	result := domain.VerificationResult{
		SignatureID: sig.ID,
		DocumentID:  sig.Document.ID,
		SignerID:    sig.SignerID,
		Kind:        sig.Kind,
		Status:      sig.Status,
		Errors:      []domain.VerificationIssue{},
		Warnings:    []string{},
		VerifiedAt:  now,
	}

	switch sig.Status {
	case domain.SignatureStatusRevoked:
		result.Revoked = true
		result.Errors = append(result.Errors, issue(domain.VerifySignatureRevoked, domain.IssueState, "signature has been revoked"))
	case domain.SignatureStatusRejected:
		result.Errors = append(result.Errors, issue(domain.VerifySignatureRejected, domain.IssueState, "signature has been rejected"))
	}

	snapshot := sig.Certificate
	if now.Before(snapshot.NotBefore) {
		result.CertificateNotYetValid = true
		result.Errors = append(result.Errors, issue(domain.VerifyCertificateNotYetValid, domain.IssueTrust,
			fmt.Sprintf("certificate is not valid before %s", snapshot.NotBefore.Format(time.RFC3339))))
	}
	if now.After(snapshot.NotAfter) {
		result.CertificateExpired = true
		result.Errors = append(result.Errors, issue(domain.VerifyCertificateExpired, domain.IssueTrust,
			fmt.Sprintf("certificate expired at %s", snapshot.NotAfter.Format(time.RFC3339))))
	}
	if s.Certificates != nil && snapshot.CertificateID != "" {
		live, err := s.Certificates.GetByID(ctx, snapshot.CertificateID)
		switch {
		case err == nil && live.Status == domain.CertificateStatusRevoked:
			result.CertificateRevoked = true
			result.Errors = append(result.Errors, issue(domain.VerifyCertificateRevoked, domain.IssueTrust, "certificate has been revoked"))
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			result.Warnings = append(result.Warnings, "live certificate status unavailable")
			s.log().Warn("certificate status lookup failed", zap.String("signature_id", sig.ID), zap.Error(err))
		}
	}
	result.CertificateValid = !result.CertificateExpired && !result.CertificateNotYetValid && !result.CertificateRevoked

	if content != nil {
		matches := s.Crypto.HashesEqual(s.Crypto.HashDocument(content), sig.DocumentHash)
		result.HashMatches = &matches
		if !matches {
			result.Errors = append(result.Errors, issue(domain.VerifyHashMismatch, domain.IssueIntegrity, "document content does not match the signed hash"))
			if sig.Kind == domain.SignatureKindAttestation {
				result.Warnings = append(result.Warnings, "attestation hashes cover the document reference, not its content")
			}
		}
	}

	switch sig.Kind {
	case domain.SignatureKindCryptographic:
		result.Method = domain.VerifyMethodCryptographic
		if sig.Algorithm != domain.AlgorithmRSASHA512 {
			result.Errors = append(result.Errors, issue(domain.VerifyUnsupportedAlgorithm, domain.IssueIntegrity,
				fmt.Sprintf("unsupported signature algorithm %q", sig.Algorithm)))
			break
		}
		if err := s.Crypto.VerifyDocumentHash(snapshot.PublicKeyPEM, sig.DocumentHash, sig.Value); err != nil {
			result.Errors = append(result.Errors, issue(domain.VerifyCryptographicFailed, domain.IssueIntegrity, err.Error()))
			break
		}
		result.SignatureValid = true
	case domain.SignatureKindAttestation:
		result.Method = domain.VerifyMethodAttestation
		result.SignatureValid = true
		result.Warnings = append(result.Warnings, attestationWarning)
	default:
		result.Errors = append(result.Errors, issue(domain.VerifyVerificationError, domain.IssueIntegrity,
			fmt.Sprintf("unknown signature kind %q", sig.Kind)))
	}

	sortIssues(result.Errors)
	result.IsValid = result.CertificateValid &&
		result.SignatureValid &&
		!result.Revoked &&
		sig.Status == domain.SignatureStatusSigned &&
		(result.HashMatches == nil || *result.HashMatches)

	if !result.IsValid {
		s.log().Info("signature failed verification",
			zap.String("signature_id", sig.ID),
			zap.Int("errors", len(result.Errors)),
		)
	}
	if result.IsValid && !sig.Verified {
		if err := s.Signatures.MarkVerified(ctx, sig.ID, result.Method, now); err != nil {
			s.log().Warn("verification metadata not updated", zap.String("signature_id", sig.ID), zap.Error(err))
		}
	}
	return result
}

// VerifyDocumentIntegrity verifies every signed signature of the document.
// The document is intact only when all of them verify.
func (s *VerificationService) VerifyDocumentIntegrity(ctx context.Context, documentID string, content []byte, tenantID string) (domain.DocumentIntegrityResult, error) {
	if s == nil || s.Signatures == nil {
		return domain.DocumentIntegrityResult{}, errors.New("signature repository is required")
	}
	if s.Crypto == nil {
		return domain.DocumentIntegrityResult{}, errors.New("crypto service is required")
	}
	if documentID == "" {
		return domain.DocumentIntegrityResult{}, fmt.Errorf("%w: document_id is required", domain.ErrInvalidInput)
	}
	sigs, err := s.Signatures.ListByDocument(ctx, documentID, tenantID, domain.SignatureStatusSigned)
	if err != nil {
		return domain.DocumentIntegrityResult{}, err
	}
	out := domain.DocumentIntegrityResult{
		DocumentID:      documentID,
		TenantID:        tenantID,
		TotalSignatures: len(sigs),
		Results:         make([]domain.VerificationResult, len(sigs)),
		Warnings:        []string{},
		CheckedAt:       s.now(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i := range sigs {
		i := i
		g.Go(func() error {
			out.Results[i] = s.verify(gctx, sigs[i], content)
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range out.Results {
		if res.IsValid {
			out.ValidSignatures++
		} else {
			out.InvalidSignatures++
		}
	}
	if out.TotalSignatures == 0 {
		out.Warnings = append(out.Warnings, "document has no signed signatures")
	}
	out.IsIntact = out.TotalSignatures > 0 && out.InvalidSignatures == 0

	if s.Policy != nil {
		eval, err := s.Policy.EvaluateIntegrity(ctx, policyInput(out))
		if err != nil {
			s.log().Warn("integrity policy evaluation failed", zap.String("document_id", documentID), zap.Error(err))
			out.Warnings = append(out.Warnings, "integrity policy evaluation failed")
		} else {
			out.Policy = &eval
		}
	}
	return out, nil
}

// BulkVerifySignatures keeps input order. A signature that cannot be loaded
// becomes a failed entry instead of aborting the batch.
func (s *VerificationService) BulkVerifySignatures(ctx context.Context, ids []string) ([]domain.VerificationResult, error) {
	return s.BulkVerifySignaturesChecked(ctx, ids, nil)
}

// BulkVerifySignaturesChecked turns signatures denied by access into
// FORBIDDEN entries.
func (s *VerificationService) BulkVerifySignaturesChecked(ctx context.Context, ids []string, access SignatureAccess) ([]domain.VerificationResult, error) {
	if len(ids) > MaxBulkVerify {
		return nil, fmt.Errorf("%w: at most %d signatures per batch", domain.ErrInvalidInput, MaxBulkVerify)
	}
	results := make([]domain.VerificationResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			res, err := s.VerifySignatureChecked(gctx, id, nil, access)
			if err != nil {
				res = s.failedResult(id, err)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (s *VerificationService) failedResult(id string, err error) domain.VerificationResult {
	code := domain.VerifyVerificationError
	msg := "verification failed"
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = domain.VerifySignatureNotFound
		msg = "signature not found"
	case errors.Is(err, domain.ErrForbidden):
		code = domain.VerifyForbidden
		msg = "signature is not accessible"
	}
	s.log().Info("bulk verification item failed", zap.String("signature_id", id), zap.Error(err))
	return domain.VerificationResult{
		SignatureID: id,
		Errors:      []domain.VerificationIssue{issue(code, domain.IssueState, msg)},
		Warnings:    []string{},
		VerifiedAt:  s.now(),
	}
}

// VerifyCertificateChain is a single-level trust check: the fingerprint must
// be one of the configured anchors. No CA hierarchy is walked.
func (s *VerificationService) VerifyCertificateChain(fingerprint string) domain.ChainResult {
	result := domain.ChainResult{Fingerprint: fingerprint, Errors: []string{}}
	if s == nil || s.Crypto == nil {
		result.Errors = append(result.Errors, "crypto service is required")
		return result
	}
	normalized, err := s.Crypto.NormalizeFingerprint(fingerprint)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return result
	}
	result.Fingerprint = normalized
	if len(s.trusted) == 0 {
		result.Errors = append(result.Errors, "no trusted certificate fingerprints configured")
		return result
	}
	if _, ok := s.trusted[normalized]; !ok {
		result.Errors = append(result.Errors, "certificate fingerprint is not a trusted root")
		return result
	}
	result.TrustedRoot = true
	result.ChainValid = true
	result.IsValid = true
	return result
}

// IsSignatureValid checks status and certificate window only.
func (s *VerificationService) IsSignatureValid(ctx context.Context, signatureID string) (bool, error) {
	return s.IsSignatureValidChecked(ctx, signatureID, nil)
}

func (s *VerificationService) IsSignatureValidChecked(ctx context.Context, signatureID string, access SignatureAccess) (bool, error) {
	if s == nil || s.Signatures == nil {
		return false, errors.New("signature repository is required")
	}
	sig, err := s.load(ctx, signatureID, access)
	if err != nil {
		return false, err
	}
	if sig.Status != domain.SignatureStatusSigned {
		return false, nil
	}
	now := s.now()
	return !now.Before(sig.Certificate.NotBefore) && !now.After(sig.Certificate.NotAfter), nil
}

func policyInput(res domain.DocumentIntegrityResult) domain.PolicyInput {
	input := domain.PolicyInput{
		DocumentID:        res.DocumentID,
		TenantID:          res.TenantID,
		IsIntact:          res.IsIntact,
		TotalSignatures:   res.TotalSignatures,
		ValidSignatures:   res.ValidSignatures,
		InvalidSignatures: res.InvalidSignatures,
		Signatures:        make([]domain.PolicySignature, 0, len(res.Results)),
	}
	for _, r := range res.Results {
		codes := make([]string, 0, len(r.Errors))
		for _, e := range r.Errors {
			codes = append(codes, string(e.Code))
		}
		input.Signatures = append(input.Signatures, domain.PolicySignature{
			SignatureID:        r.SignatureID,
			SignerID:           r.SignerID,
			Kind:               r.Kind,
			IsValid:            r.IsValid,
			CertificateExpired: r.CertificateExpired,
			CertificateRevoked: r.CertificateRevoked,
			HashMatches:        r.HashMatches,
			ErrorCodes:         codes,
			Status:             r.Status,
		})
	}
	return input
}

func issue(code domain.VerificationCode, category domain.IssueCategory, msg string) domain.VerificationIssue {
	return domain.VerificationIssue{Code: code, Category: category, Message: msg}
}

var categoryRank = map[domain.IssueCategory]int{
	domain.IssueIntegrity: 0,
	domain.IssueTrust:     1,
	domain.IssueState:     2,
}

// sortIssues lists integrity failures first.
func sortIssues(issues []domain.VerificationIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return categoryRank[issues[i].Category] < categoryRank[issues[j].Category]
	})
}

func (s *VerificationService) concurrency() int {
	if s != nil && s.Concurrency > 0 {
		return s.Concurrency
	}
	return DefaultVerifyConcurrency
}

func (s *VerificationService) now() time.Time {
	if s != nil && s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func (s *VerificationService) log() *zap.Logger {
	if s == nil || s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
