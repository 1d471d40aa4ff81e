package domain

import (
	"errors"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid request")

	ErrMalformedCertificate = errors.New("malformed certificate")
	ErrInvalidCertificate   = errors.New("invalid certificate")
	ErrDuplicateCertificate = errors.New("duplicate certificate")
	ErrNoCertificate        = errors.New("no active certificate")

	ErrDuplicateSignature  = errors.New("document already signed by signer")
	ErrSignatureFinalized  = errors.New("signature is no longer in signed state")
	ErrInvalidPrivateKey   = errors.New("invalid private key")
	ErrKeyDecryptionFailed = errors.New("private key decryption failed")

	ErrSignerNotFound      = errors.New("signer not found in workflow")
	ErrSignerAlreadySigned = errors.New("signer already completed this workflow")
	ErrWorkflowClosed      = errors.New("workflow is closed")
)

// CertificateValidationError carries the itemized reasons a certificate was refused.
type CertificateValidationError struct {
	Result ValidationResult
}

func (e *CertificateValidationError) Error() string {
	if e == nil || len(e.Result.Errors) == 0 {
		return ErrInvalidCertificate.Error()
	}
	msgs := make([]string, 0, len(e.Result.Errors))
	for _, issue := range e.Result.Errors {
		msgs = append(msgs, issue.Message)
	}
	return ErrInvalidCertificate.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *CertificateValidationError) Unwrap() error {
	return ErrInvalidCertificate
}
