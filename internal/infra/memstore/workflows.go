package memstore

import (
	"context"
	"sort"
	"time"

	"docsign/internal/domain"
	"docsign/internal/usecase"
)

// WorkflowRepository holds the store mutex for the duration of WithTx and
// buffers writes until the callback succeeds.
type WorkflowRepository struct {
	store   *Store
	pending map[string]domain.SignatureWorkflow
}

func (r *WorkflowRepository) inTx() bool {
	return r.pending != nil
}

func (r *WorkflowRepository) lock() func() {
	if r.inTx() {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

func (r *WorkflowRepository) Create(ctx context.Context, wf domain.SignatureWorkflow) error {
	defer r.lock()()
	if _, exists := r.store.workflows[wf.ID]; exists {
		return domain.ErrInvalidInput
	}
	r.store.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*domain.SignatureWorkflow, error) {
	defer r.lock()()
	return r.get(id)
}

func (r *WorkflowRepository) GetForUpdate(ctx context.Context, id string) (*domain.SignatureWorkflow, error) {
	defer r.lock()()
	return r.get(id)
}

func (r *WorkflowRepository) get(id string) (*domain.SignatureWorkflow, error) {
	if r.inTx() {
		if wf, ok := r.pending[id]; ok {
			out := cloneWorkflow(wf)
			return &out, nil
		}
	}
	wf, ok := r.store.workflows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneWorkflow(wf)
	return &out, nil
}

func (r *WorkflowRepository) ListBySigner(ctx context.Context, signerID, tenantID string, status domain.WorkflowStatus) ([]domain.SignatureWorkflow, error) {
	defer r.lock()()
	var out []domain.SignatureWorkflow
	for _, wf := range r.store.workflows {
		if tenantID != "" && wf.Document.TenantID != tenantID {
			continue
		}
		if status != "" && wf.Status != status {
			continue
		}
		for _, signer := range wf.Signers {
			if signer.SignerID == signerID {
				out = append(out, cloneWorkflow(wf))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *WorkflowRepository) ListOverdueIDs(ctx context.Context, now time.Time) ([]string, error) {
	defer r.lock()()
	var ids []string
	for id, wf := range r.store.workflows {
		if wf.Status.IsOpen() && wf.DueDate != nil && !wf.DueDate.After(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *WorkflowRepository) Update(ctx context.Context, wf domain.SignatureWorkflow) error {
	defer r.lock()()
	if _, ok := r.store.workflows[wf.ID]; !ok {
		return domain.ErrNotFound
	}
	if r.inTx() {
		r.pending[wf.ID] = cloneWorkflow(wf)
		return nil
	}
	r.store.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

func (r *WorkflowRepository) WithTx(ctx context.Context, fn func(repo usecase.WorkflowRepository) error) error {
	if r.inTx() {
		return fn(r)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	tx := &WorkflowRepository{store: r.store, pending: make(map[string]domain.SignatureWorkflow)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, wf := range tx.pending {
		r.store.workflows[id] = wf
	}
	return nil
}

func cloneWorkflow(wf domain.SignatureWorkflow) domain.SignatureWorkflow {
	wf.DueDate = clonePtr(wf.DueDate)
	wf.CompletedAt = clonePtr(wf.CompletedAt)
	wf.VoidedAt = clonePtr(wf.VoidedAt)
	signers := make([]domain.Signer, len(wf.Signers))
	for i, signer := range wf.Signers {
		signer.SignedAt = clonePtr(signer.SignedAt)
		signers[i] = signer
	}
	wf.Signers = signers
	return wf
}
