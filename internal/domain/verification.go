package domain

import "time"

type IssueCategory string

const (
	IssueIntegrity IssueCategory = "integrity"
	IssueTrust     IssueCategory = "trust"
	IssueState     IssueCategory = "state"
)

type VerificationCode string

const (
	VerifyHashMismatch           VerificationCode = "HASH_MISMATCH"
	VerifyCryptographicFailed    VerificationCode = "CRYPTOGRAPHIC_VERIFICATION_FAILED"
	VerifyCertificateExpired     VerificationCode = "CERTIFICATE_EXPIRED"
	VerifyCertificateNotYetValid VerificationCode = "CERTIFICATE_NOT_YET_VALID"
	VerifyCertificateRevoked     VerificationCode = "CERTIFICATE_REVOKED"
	VerifySignatureRevoked       VerificationCode = "SIGNATURE_REVOKED"
	VerifySignatureRejected      VerificationCode = "SIGNATURE_REJECTED"
	VerifySignatureNotFound      VerificationCode = "SIGNATURE_NOT_FOUND"
	VerifyForbidden              VerificationCode = "FORBIDDEN"
	VerifyVerificationError      VerificationCode = "VERIFICATION_ERROR"
	VerifyUnsupportedAlgorithm   VerificationCode = "UNSUPPORTED_ALGORITHM"
)

const (
	VerifyMethodAttestation   = "attestation"
	VerifyMethodCryptographic = "cryptographic"
)

type VerificationIssue struct {
	Code     VerificationCode `json:"code"`
	Category IssueCategory    `json:"category"`
	Message  string           `json:"message"`
}

type VerificationResult struct {
	SignatureID            string              `json:"signature_id"`
	DocumentID             string              `json:"document_id,omitempty"`
	SignerID               string              `json:"signer_id,omitempty"`
	Kind                   SignatureKind       `json:"signature_kind,omitempty"`
	Status                 SignatureStatus     `json:"signature_status,omitempty"`
	IsValid                bool                `json:"is_valid"`
	CertificateValid       bool                `json:"certificate_valid"`
	CertificateExpired     bool                `json:"certificate_expired"`
	CertificateNotYetValid bool                `json:"certificate_not_yet_valid"`
	CertificateRevoked     bool                `json:"certificate_revoked"`
	SignatureValid         bool                `json:"signature_valid"`
	Revoked                bool                `json:"revoked"`
	HashMatches            *bool               `json:"hash_matches,omitempty"`
	Method                 string              `json:"method,omitempty"`
	Errors                 []VerificationIssue `json:"errors"`
	Warnings               []string            `json:"warnings"`
	VerifiedAt             time.Time           `json:"verified_at"`
}

// HasIntegrityFailure reports whether any itemized error implies tampering.
func (r VerificationResult) HasIntegrityFailure() bool {
	for _, issue := range r.Errors {
		if issue.Category == IssueIntegrity {
			return true
		}
	}
	return false
}

type DocumentIntegrityResult struct {
	DocumentID        string               `json:"document_id"`
	TenantID          string               `json:"tenant_id,omitempty"`
	IsIntact          bool                 `json:"is_intact"`
	TotalSignatures   int                  `json:"total_signatures"`
	ValidSignatures   int                  `json:"valid_signatures"`
	InvalidSignatures int                  `json:"invalid_signatures"`
	Results           []VerificationResult `json:"results"`
	Warnings          []string             `json:"warnings"`
	Policy            *PolicyEvaluation    `json:"policy,omitempty"`
	CheckedAt         time.Time            `json:"checked_at"`
}

// ChainResult is the outcome of the single-level trust-anchor check.
type ChainResult struct {
	Fingerprint string   `json:"fingerprint"`
	IsValid     bool     `json:"is_valid"`
	ChainValid  bool     `json:"chain_valid"`
	TrustedRoot bool     `json:"trusted_root"`
	Errors      []string `json:"errors"`
}
