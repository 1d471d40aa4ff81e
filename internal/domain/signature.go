package domain

import "time"

type SignatureKind string

const (
	SignatureKindAttestation   SignatureKind = "attestation"
	SignatureKindCryptographic SignatureKind = "cryptographic"
)

type SignatureStatus string

const (
	SignatureStatusSigned   SignatureStatus = "signed"
	SignatureStatusRejected SignatureStatus = "rejected"
	SignatureStatusRevoked  SignatureStatus = "revoked"
)

const (
	// AttestationValue is stored as the signature value of every attestation signature.
	AttestationValue = "ATTESTATION"

	AlgorithmAttestation = "ATTESTATION"
	AlgorithmRSASHA512   = "RSA-SHA512"
)

type DocumentRef struct {
	Type     string `json:"document_type"`
	ID       string `json:"document_id"`
	TenantID string `json:"tenant_id"`
}

// CertificateSnapshot freezes the certificate fields that were true at signing time.
type CertificateSnapshot struct {
	CertificateID string            `json:"certificate_id"`
	Subject       DistinguishedName `json:"subject"`
	Issuer        DistinguishedName `json:"issuer"`
	SerialNumber  string            `json:"serial_number"`
	Fingerprint   string            `json:"fingerprint"`
	NotBefore     time.Time         `json:"not_before"`
	NotAfter      time.Time         `json:"not_after"`
	PublicKeyPEM  string            `json:"public_key_pem"`
}

func SnapshotOf(cert StoredCertificate) CertificateSnapshot {
	return CertificateSnapshot{
		CertificateID: cert.ID,
		Subject:       cert.Info.Subject,
		Issuer:        cert.Info.Issuer,
		SerialNumber:  cert.Info.SerialNumber,
		Fingerprint:   cert.Info.Fingerprint,
		NotBefore:     cert.Info.NotBefore,
		NotAfter:      cert.Info.NotAfter,
		PublicKeyPEM:  cert.Info.PublicKeyPEM,
	}
}

type Provenance struct {
	IPAddress   string `json:"ip_address,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
	Geolocation string `json:"geolocation,omitempty"`
}

type Signature struct {
	ID             string
	Document       DocumentRef
	DocumentHash   string
	Kind           SignatureKind
	Status         SignatureStatus
	SignerID       string
	SignerName     string
	SignerEmail    string
	SignerRole     string
	Certificate    CertificateSnapshot
	Algorithm      string
	Value          string
	Verified       bool
	VerifiedAt     *time.Time
	VerifyMethod   string
	Provenance     Provenance
	SignedAt       time.Time
	StatusReason   string
	StatusActor    string
	StatusChangeAt *time.Time
}

// SignatureSummary is the list view returned per document.
type SignatureSummary struct {
	ID                 string          `json:"id"`
	DocumentType       string          `json:"document_type"`
	DocumentID         string          `json:"document_id"`
	SignerID           string          `json:"signer_id"`
	SignerName         string          `json:"signer_name"`
	SignerRole         string          `json:"signer_role,omitempty"`
	SignatureKind      SignatureKind   `json:"signature_kind"`
	SignatureStatus    SignatureStatus `json:"signature_status"`
	SignatureValue     string          `json:"signature_value"`
	Algorithm          string          `json:"algorithm"`
	DocumentHash       string          `json:"document_hash"`
	CertificateSubject string          `json:"certificate_subject"`
	CertificateIssuer  string          `json:"certificate_issuer"`
	Fingerprint        string          `json:"fingerprint"`
	Verified           bool            `json:"verified"`
	SignedAt           time.Time       `json:"signed_at"`
}

func SummaryOf(sig Signature) SignatureSummary {
	return SignatureSummary{
		ID:                 sig.ID,
		DocumentType:       sig.Document.Type,
		DocumentID:         sig.Document.ID,
		SignerID:           sig.SignerID,
		SignerName:         sig.SignerName,
		SignerRole:         sig.SignerRole,
		SignatureKind:      sig.Kind,
		SignatureStatus:    sig.Status,
		SignatureValue:     sig.Value,
		Algorithm:          sig.Algorithm,
		DocumentHash:       sig.DocumentHash,
		CertificateSubject: sig.Certificate.Subject.CommonName,
		CertificateIssuer:  sig.Certificate.Issuer.CommonName,
		Fingerprint:        sig.Certificate.Fingerprint,
		Verified:           sig.Verified,
		SignedAt:           sig.SignedAt,
	}
}

type SignatureResult struct {
	SignatureID   string          `json:"signature_id"`
	DocumentHash  string          `json:"document_hash"`
	Kind          SignatureKind   `json:"signature_kind"`
	Status        SignatureStatus `json:"signature_status"`
	Algorithm     string          `json:"algorithm"`
	Value         string          `json:"signature_value"`
	Fingerprint   string          `json:"certificate_fingerprint"`
	CertificateID string          `json:"certificate_id"`
	SignedAt      time.Time       `json:"signed_at"`
}
