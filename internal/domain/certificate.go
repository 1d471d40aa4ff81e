package domain

import "time"

type CertificateStatus string

const (
	CertificateStatusActive  CertificateStatus = "active"
	CertificateStatusRevoked CertificateStatus = "revoked"
	// CertificateStatusExpired is computed from the validity window and never stored.
	CertificateStatusExpired CertificateStatus = "expired"
)

// Key usage tags as reported by ParseCertificate.
const (
	KeyUsageDigitalSignature = "digitalSignature"
	KeyUsageNonRepudiation   = "nonRepudiation"
	KeyUsageKeyEncipherment  = "keyEncipherment"
	KeyUsageDataEncipherment = "dataEncipherment"
	KeyUsageKeyAgreement     = "keyAgreement"
	KeyUsageKeyCertSign      = "keyCertSign"
	KeyUsageCRLSign          = "cRLSign"
	KeyUsageEncipherOnly     = "encipherOnly"
	KeyUsageDecipherOnly     = "decipherOnly"
)

type DistinguishedName struct {
	CommonName         string `json:"common_name"`
	Organization       string `json:"organization,omitempty"`
	OrganizationalUnit string `json:"organizational_unit,omitempty"`
	Country            string `json:"country,omitempty"`
	State              string `json:"state,omitempty"`
	Locality           string `json:"locality,omitempty"`
	Email              string `json:"email,omitempty"`
}

// CertificateInfo is the parsed view of a single PEM certificate.
type CertificateInfo struct {
	Subject      DistinguishedName `json:"subject"`
	Issuer       DistinguishedName `json:"issuer"`
	SerialNumber string            `json:"serial_number"`
	NotBefore    time.Time         `json:"not_before"`
	NotAfter     time.Time         `json:"not_after"`
	Fingerprint  string            `json:"fingerprint"`
	PublicKeyPEM string            `json:"public_key_pem"`
	KeyUsage     []string          `json:"key_usage"`
}

// ValidityAt reports whether t falls inside [NotBefore, NotAfter].
func (c CertificateInfo) ValidityAt(t time.Time) (notYetValid bool, expired bool) {
	return t.Before(c.NotBefore), t.After(c.NotAfter)
}

type ValidationOptions struct {
	RequireOrgName   bool
	RequireEmail     bool
	MinValidityDays  int
	AllowedKeyUsages []string
}

type ValidationCode string

const (
	ValidationMalformed         ValidationCode = "MALFORMED_CERTIFICATE"
	ValidationNotYetValid       ValidationCode = "NOT_YET_VALID"
	ValidationExpired           ValidationCode = "EXPIRED"
	ValidationExpiringSoon      ValidationCode = "EXPIRING_SOON"
	ValidationMissingCommonName ValidationCode = "MISSING_COMMON_NAME"
	ValidationMissingOrg        ValidationCode = "MISSING_ORGANIZATION"
	ValidationMissingEmail      ValidationCode = "MISSING_EMAIL"
	ValidationKeyUsage          ValidationCode = "KEY_USAGE_NOT_ALLOWED"
)

type ValidationIssue struct {
	Code    ValidationCode `json:"code"`
	Message string         `json:"message"`
}

// ValidationResult separates fatal errors from advisory warnings.
type ValidationResult struct {
	IsValid     bool              `json:"is_valid"`
	Certificate *CertificateInfo  `json:"certificate,omitempty"`
	Errors      []ValidationIssue `json:"errors"`
	Warnings    []ValidationIssue `json:"warnings"`
}

type StoredCertificate struct {
	ID               string
	SignerID         string
	TenantID         string
	Info             CertificateInfo
	PEM              string
	Status           CertificateStatus
	RevokedAt        *time.Time
	RevocationReason string
	CreatedAt        time.Time
}

// EffectiveStatus folds the computed expiry into the stored status.
func (c StoredCertificate) EffectiveStatus(now time.Time) CertificateStatus {
	if c.Status == CertificateStatusRevoked {
		return CertificateStatusRevoked
	}
	if now.After(c.Info.NotAfter) {
		return CertificateStatusExpired
	}
	return CertificateStatusActive
}
