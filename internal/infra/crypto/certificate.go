package crypto

import (
	"bytes"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"strings"

	"docsign/internal/domain"
)

var oidEmailAddress = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 1}

var keyUsageTags = []struct {
	bit x509.KeyUsage
	tag string
}{
	{x509.KeyUsageDigitalSignature, domain.KeyUsageDigitalSignature},
	{x509.KeyUsageContentCommitment, domain.KeyUsageNonRepudiation},
	{x509.KeyUsageKeyEncipherment, domain.KeyUsageKeyEncipherment},
	{x509.KeyUsageDataEncipherment, domain.KeyUsageDataEncipherment},
	{x509.KeyUsageKeyAgreement, domain.KeyUsageKeyAgreement},
	{x509.KeyUsageCertSign, domain.KeyUsageKeyCertSign},
	{x509.KeyUsageCRLSign, domain.KeyUsageCRLSign},
	{x509.KeyUsageEncipherOnly, domain.KeyUsageEncipherOnly},
	{x509.KeyUsageDecipherOnly, domain.KeyUsageDecipherOnly},
}

// ParseCertificatePEM decodes exactly one PEM certificate and extracts its metadata.
func ParseCertificatePEM(pemData []byte) (domain.CertificateInfo, error) {
	block, rest := pem.Decode(bytes.TrimSpace(pemData))
	if block == nil {
		return domain.CertificateInfo{}, fmt.Errorf("%w: no PEM block found", domain.ErrMalformedCertificate)
	}
	if block.Type != "CERTIFICATE" {
		return domain.CertificateInfo{}, fmt.Errorf("%w: unexpected PEM block %q", domain.ErrMalformedCertificate, block.Type)
	}
	if next, _ := pem.Decode(rest); next != nil {
		return domain.CertificateInfo{}, fmt.Errorf("%w: expected a single certificate", domain.ErrMalformedCertificate)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return domain.CertificateInfo{}, fmt.Errorf("%w: %v", domain.ErrMalformedCertificate, err)
	}
	publicKeyPEM, err := PublicKeyPEM(cert.PublicKey)
	if err != nil {
		return domain.CertificateInfo{}, fmt.Errorf("%w: %v", domain.ErrMalformedCertificate, err)
	}
	return domain.CertificateInfo{
		Subject:      distinguishedName(cert.Subject),
		Issuer:       distinguishedName(cert.Issuer),
		SerialNumber: serialHex(cert),
		NotBefore:    cert.NotBefore.UTC(),
		NotAfter:     cert.NotAfter.UTC(),
		Fingerprint:  Fingerprint(cert.Raw),
		PublicKeyPEM: publicKeyPEM,
		KeyUsage:     keyUsage(cert.KeyUsage),
	}, nil
}

func distinguishedName(name pkix.Name) domain.DistinguishedName {
	dn := domain.DistinguishedName{
		CommonName:         name.CommonName,
		Organization:       first(name.Organization),
		OrganizationalUnit: first(name.OrganizationalUnit),
		Country:            first(name.Country),
		State:              first(name.Province),
		Locality:           first(name.Locality),
	}
	for _, attr := range name.Names {
		if !attr.Type.Equal(oidEmailAddress) {
			continue
		}
		if email, ok := attr.Value.(string); ok {
			dn.Email = email
			break
		}
	}
	return dn
}

func keyUsage(usage x509.KeyUsage) []string {
	out := make([]string, 0, len(keyUsageTags))
	for _, ku := range keyUsageTags {
		if usage&ku.bit != 0 {
			out = append(out, ku.tag)
		}
	}
	return out
}

func serialHex(cert *x509.Certificate) string {
	if cert.SerialNumber == nil {
		return ""
	}
	serial := strings.ToUpper(cert.SerialNumber.Text(16))
	if len(serial)%2 == 1 {
		serial = "0" + serial
	}
	return serial
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
