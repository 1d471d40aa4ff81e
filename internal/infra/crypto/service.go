package crypto

import (
	"fmt"

	"docsign/internal/domain"
)

// Service exposes the primitives through the usecase crypto port.
type Service struct{}

func (s *Service) HashDocument(content []byte) string {
	return HashDocument(content)
}

func (s *Service) HashDocumentReference(doc domain.DocumentRef) string {
	return HashDocumentReference(doc.Type, doc.ID, doc.TenantID)
}

func (s *Service) HashesEqual(a, b string) bool {
	return HashesEqual(a, b)
}

func (s *Service) ParseCertificate(pemData []byte) (domain.CertificateInfo, error) {
	return ParseCertificatePEM(pemData)
}

func (s *Service) NormalizeFingerprint(value string) (string, error) {
	return NormalizeFingerprint(value)
}

// SignDocumentHash loads the private key and signs documentHash. When
// certificatePublicKeyPEM is set the key must belong to that certificate.
func (s *Service) SignDocumentHash(privateKeyPEM []byte, passphrase []byte, documentHash string, certificatePublicKeyPEM string) (string, error) {
	key, err := ParsePrivateKeyPEM(privateKeyPEM, passphrase)
	if err != nil {
		return "", err
	}
	if certificatePublicKeyPEM != "" && !PublicKeyMatches(key, certificatePublicKeyPEM) {
		return "", fmt.Errorf("%w: key does not belong to the signer certificate", domain.ErrInvalidPrivateKey)
	}
	return SignHash(key, documentHash)
}

func (s *Service) VerifyDocumentHash(publicKeyPEM string, documentHash string, signatureB64 string) error {
	pub, err := ParsePublicKeyPEM([]byte(publicKeyPEM))
	if err != nil {
		return err
	}
	return VerifyHash(pub, documentHash, signatureB64)
}
