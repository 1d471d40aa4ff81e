package memstore

import (
	"context"
	"sort"
	"time"

	"docsign/internal/domain"
)

type CertificateRepository struct {
	store *Store
}

func (r *CertificateRepository) Create(ctx context.Context, cert domain.StoredCertificate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.certs {
		if existing.SignerID == cert.SignerID && existing.Info.Fingerprint == cert.Info.Fingerprint {
			return domain.ErrDuplicateCertificate
		}
	}
	r.store.certs[cert.ID] = cloneCert(cert)
	return nil
}

func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*domain.StoredCertificate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cert, ok := r.store.certs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneCert(cert)
	return &out, nil
}

func (r *CertificateRepository) GetByFingerprint(ctx context.Context, signerID, fingerprint string) (*domain.StoredCertificate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, cert := range r.store.certs {
		if cert.SignerID == signerID && cert.Info.Fingerprint == fingerprint {
			out := cloneCert(cert)
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *CertificateRepository) FindActive(ctx context.Context, signerID, tenantID string, now time.Time) (*domain.StoredCertificate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var best *domain.StoredCertificate
	for _, cert := range r.store.certs {
		if cert.SignerID != signerID || cert.Status == domain.CertificateStatusRevoked {
			continue
		}
		if tenantID != "" && cert.TenantID != tenantID {
			continue
		}
		if now.After(cert.Info.NotAfter) {
			continue
		}
		if best == nil || cert.Info.NotAfter.After(best.Info.NotAfter) {
			c := cloneCert(cert)
			best = &c
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	return best, nil
}

func (r *CertificateRepository) Revoke(ctx context.Context, id, reason string, at time.Time) (*domain.StoredCertificate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cert, ok := r.store.certs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if cert.Status != domain.CertificateStatusRevoked {
		revokedAt := at.UTC()
		cert.Status = domain.CertificateStatusRevoked
		cert.RevokedAt = &revokedAt
		cert.RevocationReason = reason
		r.store.certs[id] = cert
	}
	out := cloneCert(cert)
	return &out, nil
}

func (r *CertificateRepository) ListExpiring(ctx context.Context, from, to time.Time) ([]domain.StoredCertificate, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.StoredCertificate
	for _, cert := range r.store.certs {
		if cert.Status == domain.CertificateStatusRevoked {
			continue
		}
		if cert.Info.NotAfter.Before(from) || cert.Info.NotAfter.After(to) {
			continue
		}
		out = append(out, cloneCert(cert))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Info.NotAfter.Equal(out[j].Info.NotAfter) {
			return out[i].ID < out[j].ID
		}
		return out[i].Info.NotAfter.Before(out[j].Info.NotAfter)
	})
	return out, nil
}

func cloneCert(cert domain.StoredCertificate) domain.StoredCertificate {
	cert.RevokedAt = clonePtr(cert.RevokedAt)
	cert.Info.KeyUsage = append([]string(nil), cert.Info.KeyUsage...)
	return cert
}
