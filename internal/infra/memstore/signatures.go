package memstore

import (
	"context"
	"sort"
	"time"

	"docsign/internal/domain"
)

type SignatureRepository struct {
	store *Store
}

// Create enforces one signed record per document and signer, mirroring the
// partial unique index of the postgres schema.
func (r *SignatureRepository) Create(ctx context.Context, sig domain.Signature) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if sig.Status == domain.SignatureStatusSigned {
		for _, existing := range r.store.signatures {
			if existing.Status == domain.SignatureStatusSigned && existing.Document == sig.Document && existing.SignerID == sig.SignerID {
				return domain.ErrDuplicateSignature
			}
		}
	}
	r.store.signatures[sig.ID] = cloneSignature(sig)
	return nil
}

func (r *SignatureRepository) GetByID(ctx context.Context, id string) (*domain.Signature, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sig, ok := r.store.signatures[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneSignature(sig)
	return &out, nil
}

func (r *SignatureRepository) FindSigned(ctx context.Context, doc domain.DocumentRef, signerID string) (*domain.Signature, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, sig := range r.store.signatures {
		if sig.Status == domain.SignatureStatusSigned && sig.Document == doc && sig.SignerID == signerID {
			out := cloneSignature(sig)
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *SignatureRepository) ListByDocument(ctx context.Context, documentID, tenantID string, status domain.SignatureStatus) ([]domain.Signature, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var out []domain.Signature
	for _, sig := range r.store.signatures {
		if sig.Document.ID != documentID {
			continue
		}
		if tenantID != "" && sig.Document.TenantID != tenantID {
			continue
		}
		if status != "" && sig.Status != status {
			continue
		}
		out = append(out, cloneSignature(sig))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SignedAt.Equal(out[j].SignedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SignedAt.Before(out[j].SignedAt)
	})
	return out, nil
}

func (r *SignatureRepository) Transition(ctx context.Context, id string, to domain.SignatureStatus, reason, actor string, at time.Time) (*domain.Signature, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sig, ok := r.store.signatures[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if sig.Status != domain.SignatureStatusSigned {
		return nil, domain.ErrSignatureFinalized
	}
	changedAt := at.UTC()
	sig.Status = to
	sig.StatusReason = reason
	sig.StatusActor = actor
	sig.StatusChangeAt = &changedAt
	r.store.signatures[id] = sig
	out := cloneSignature(sig)
	return &out, nil
}

func (r *SignatureRepository) MarkVerified(ctx context.Context, id, method string, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	sig, ok := r.store.signatures[id]
	if !ok {
		return domain.ErrNotFound
	}
	if sig.Status != domain.SignatureStatusSigned || sig.Verified {
		return nil
	}
	verifiedAt := at.UTC()
	sig.Verified = true
	sig.VerifiedAt = &verifiedAt
	sig.VerifyMethod = method
	r.store.signatures[id] = sig
	return nil
}

func cloneSignature(sig domain.Signature) domain.Signature {
	sig.VerifiedAt = clonePtr(sig.VerifiedAt)
	sig.StatusChangeAt = clonePtr(sig.StatusChangeAt)
	return sig
}
