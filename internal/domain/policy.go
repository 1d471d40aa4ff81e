package domain

// PolicyInput is the document the integrity policy is evaluated against.
type PolicyInput struct {
	DocumentID        string            `json:"document_id"`
	TenantID          string            `json:"tenant_id,omitempty"`
	IsIntact          bool              `json:"is_intact"`
	TotalSignatures   int               `json:"total_signatures"`
	ValidSignatures   int               `json:"valid_signatures"`
	InvalidSignatures int               `json:"invalid_signatures"`
	Signatures        []PolicySignature `json:"signatures"`
}

type PolicySignature struct {
	SignatureID        string          `json:"signature_id"`
	SignerID           string          `json:"signer_id"`
	Kind               SignatureKind   `json:"kind"`
	IsValid            bool            `json:"is_valid"`
	CertificateExpired bool            `json:"certificate_expired"`
	CertificateRevoked bool            `json:"certificate_revoked"`
	HashMatches        *bool           `json:"hash_matches,omitempty"`
	ErrorCodes         []string        `json:"error_codes,omitempty"`
	Status             SignatureStatus `json:"status"`
}

type PolicyDeny struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

type PolicyResult struct {
	Allow bool         `json:"allow"`
	Deny  []PolicyDeny `json:"deny,omitempty"`
}

type PolicyEvaluation struct {
	BundleID   string       `json:"bundle_id,omitempty"`
	BundleHash string       `json:"bundle_hash,omitempty"`
	Result     PolicyResult `json:"result"`
}
