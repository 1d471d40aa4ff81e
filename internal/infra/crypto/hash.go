package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"docsign/internal/domain"
)

// HashDocument returns the lowercase hex SHA-512 of raw document content.
func HashDocument(content []byte) string {
	sum := sha512.Sum512(content)
	return hex.EncodeToString(sum[:])
}

// HashDocumentReference hashes the identifier "type:id:tenant", not document content.
// The result only binds a signature to a document identity and cannot detect
// tampering with the underlying file.
func HashDocumentReference(docType, docID, tenantID string) string {
	return HashDocument([]byte(docType + ":" + docID + ":" + tenantID))
}

// HashesEqual compares two hex digests case-insensitively in constant time.
func HashesEqual(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Fingerprint renders SHA-256(der) as uppercase colon-separated hex pairs.
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	return formatFingerprint(sum[:])
}

// NormalizeFingerprint accepts colon, space or unseparated hex and returns the canonical form.
func NormalizeFingerprint(value string) (string, error) {
	cleaned := strings.NewReplacer(":", "", " ", "", "-", "").Replace(strings.TrimSpace(value))
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return "", fmt.Errorf("%w: fingerprint is not hex", domain.ErrInvalidInput)
	}
	if len(raw) != sha256.Size {
		return "", fmt.Errorf("%w: fingerprint must be %d bytes, got %d", domain.ErrInvalidInput, sha256.Size, len(raw))
	}
	return formatFingerprint(raw), nil
}

func formatFingerprint(raw []byte) string {
	parts := make([]string, len(raw))
	for i, b := range raw {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
