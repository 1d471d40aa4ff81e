package crypto

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"docsign/internal/domain"

	"github.com/youmark/pkcs8"
)

// ParsePrivateKeyPEM loads an RSA private key from PKCS#1, PKCS#8, encrypted
// PKCS#8 or legacy encrypted PEM. Errors never include key material.
func ParsePrivateKeyPEM(pemData []byte, passphrase []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(bytes.TrimSpace(pemData))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", domain.ErrInvalidPrivateKey)
	}

	var (
		key any
		err error
	)
	switch {
	case block.Type == "ENCRYPTED PRIVATE KEY":
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("%w: passphrase required", domain.ErrKeyDecryptionFailed)
		}
		key, err = pkcs8.ParsePKCS8PrivateKey(block.Bytes, passphrase)
		if err != nil {
			return nil, fmt.Errorf("%w: wrong passphrase or corrupt key", domain.ErrKeyDecryptionFailed)
		}
	//nolint:staticcheck // legacy RFC 1423 keys are still produced by older tooling
	case x509.IsEncryptedPEMBlock(block):
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("%w: passphrase required", domain.ErrKeyDecryptionFailed)
		}
		//nolint:staticcheck
		der, decErr := x509.DecryptPEMBlock(block, passphrase)
		if decErr != nil {
			return nil, fmt.Errorf("%w: wrong passphrase or corrupt key", domain.ErrKeyDecryptionFailed)
		}
		// A wrong passphrase can still pass the padding check and yield garbage DER.
		if key, err = parseUnencryptedDER(block.Type, der); err != nil {
			return nil, fmt.Errorf("%w: wrong passphrase or corrupt key", domain.ErrKeyDecryptionFailed)
		}
	default:
		key, err = parseUnencryptedDER(block.Type, block.Bytes)
	}
	if err != nil {
		return nil, err
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", domain.ErrInvalidPrivateKey)
	}
	return rsaKey, nil
}

func parseUnencryptedDER(blockType string, der []byte) (any, error) {
	switch blockType {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed PKCS#1 key", domain.ErrInvalidPrivateKey)
		}
		return key, nil
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed PKCS#8 key", domain.ErrInvalidPrivateKey)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unsupported PEM block %q", domain.ErrInvalidPrivateKey, blockType)
	}
}

// ParsePublicKeyPEM accepts PKIX, PKCS#1 or a certificate and returns its RSA key.
func ParsePublicKeyPEM(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(bytes.TrimSpace(pemData))
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	var key any
	switch block.Type {
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		key = parsed
	case "RSA PUBLIC KEY":
		parsed, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse public key: %w", err)
		}
		key = parsed
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		key = cert.PublicKey
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not an RSA public key")
	}
	return pub, nil
}

// PublicKeyPEM exports a public key as a PKIX "PUBLIC KEY" PEM block.
func PublicKeyPEM(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// PublicKeyMatches reports whether priv is the private half of publicKeyPEM.
func PublicKeyMatches(priv *rsa.PrivateKey, publicKeyPEM string) bool {
	pub, err := ParsePublicKeyPEM([]byte(publicKeyPEM))
	if err != nil || priv == nil {
		return false
	}
	return priv.PublicKey.Equal(pub)
}
