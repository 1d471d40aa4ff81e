// Package testutil builds real RSA keys and self-signed certificates for tests.
package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/youmark/pkcs8"
)

var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

var (
	keyMu   sync.Mutex
	keyPool []*rsa.PrivateKey
)

// RSAKey returns the index-th cached 2048-bit key, generating it on first use.
func RSAKey(tb testing.TB, index int) *rsa.PrivateKey {
	tb.Helper()
	keyMu.Lock()
	defer keyMu.Unlock()
	for len(keyPool) <= index {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			tb.Fatalf("generate rsa key: %v", err)
		}
		keyPool = append(keyPool, key)
	}
	return keyPool[index]
}

type CertificateOptions struct {
	CommonName   string
	Organization string
	Email        string
	Country      string
	NotBefore    time.Time
	NotAfter     time.Time
	KeyUsage     x509.KeyUsage
	Serial       int64
	Key          *rsa.PrivateKey
}

// DefaultCertificateOptions is a signing certificate valid for a year from now.
func DefaultCertificateOptions(tb testing.TB) CertificateOptions {
	now := time.Now().UTC()
	return CertificateOptions{
		CommonName:   "Alice Signer",
		Organization: "Example Union",
		Email:        "alice@example.test",
		Country:      "US",
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.AddDate(1, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment,
		Serial:       4242,
		Key:          RSAKey(tb, 0),
	}
}

// CertificatePEM self-signs a certificate for opts and returns it PEM encoded.
func CertificatePEM(tb testing.TB, opts CertificateOptions) string {
	tb.Helper()
	key := opts.Key
	if key == nil {
		key = RSAKey(tb, 0)
	}
	subject := pkix.Name{CommonName: opts.CommonName}
	if opts.Organization != "" {
		subject.Organization = []string{opts.Organization}
	}
	if opts.Country != "" {
		subject.Country = []string{opts.Country}
	}
	if opts.Email != "" {
		subject.ExtraNames = []pkix.AttributeTypeAndValue{{Type: oidEmailAddress, Value: opts.Email}}
	}
	serial := opts.Serial
	if serial == 0 {
		serial = 1
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               subject,
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotAfter,
		KeyUsage:              opts.KeyUsage,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		tb.Fatalf("create certificate: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func PKCS1PrivateKeyPEM(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}))
}

func PKCS8PrivateKeyPEM(tb testing.TB, key *rsa.PrivateKey) string {
	tb.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		tb.Fatalf("marshal pkcs8: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// EncryptedPKCS8PrivateKeyPEM protects key with passphrase using the pkcs8 defaults.
func EncryptedPKCS8PrivateKeyPEM(tb testing.TB, key *rsa.PrivateKey, passphrase string) string {
	tb.Helper()
	der, err := pkcs8.MarshalPrivateKey(key, []byte(passphrase), nil)
	if err != nil {
		tb.Fatalf("marshal encrypted pkcs8: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: der}))
}

// LegacyEncryptedPrivateKeyPEM produces an RFC 1423 "Proc-Type: 4,ENCRYPTED" PKCS#1 block.
func LegacyEncryptedPrivateKeyPEM(tb testing.TB, key *rsa.PrivateKey, passphrase string) string {
	tb.Helper()
	//nolint:staticcheck
	block, err := x509.EncryptPEMBlock(rand.Reader, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key), []byte(passphrase), x509.PEMCipherAES256)
	if err != nil {
		tb.Fatalf("encrypt pem block: %v", err)
	}
	return string(pem.EncodeToMemory(block))
}
