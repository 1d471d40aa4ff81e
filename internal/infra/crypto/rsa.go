package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
)

// SignHash produces a base64 RSA PKCS#1 v1.5 signature over SHA-512 of the
// hex document hash string.
func SignHash(priv *rsa.PrivateKey, documentHash string) (string, error) {
	if priv == nil {
		return "", errors.New("private key is required")
	}
	if documentHash == "" {
		return "", errors.New("document hash is required")
	}
	digest := sha512.Sum512([]byte(documentHash))
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA512, digest[:])
	if err != nil {
		return "", fmt.Errorf("sign document hash: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyHash checks a signature produced by SignHash.
func VerifyHash(pub *rsa.PublicKey, documentHash string, signatureB64 string) error {
	if pub == nil {
		return errors.New("public key is required")
	}
	if signatureB64 == "" {
		return errors.New("signature value is required")
	}
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	digest := sha512.Sum512([]byte(documentHash))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA512, digest[:], sig); err != nil {
		return errors.New("signature verification failed")
	}
	return nil
}
