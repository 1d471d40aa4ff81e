package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"docsign/internal/domain"
	"docsign/internal/usecase"
)

func seedWorkflow(t *testing.T, repo *WorkflowRepository, id string, due *time.Time) {
	t.Helper()
	err := repo.Create(context.Background(), domain.SignatureWorkflow{
		ID:           id,
		Document:     domain.DocumentRef{Type: "contract", ID: "doc-" + id, TenantID: "tenant-1"},
		Status:       domain.WorkflowStatusPending,
		TotalSigners: 1,
		DueDate:      due,
		Signers: []domain.Signer{
			{ID: id + "-s1", WorkflowID: id, SignerID: "alice", Order: 1, Required: true, Status: domain.SignerStatusPending},
		},
	})
	if err != nil {
		t.Fatalf("create workflow: %v", err)
	}
}

func TestWorkflowRepository_WithTxRollsBackOnError(t *testing.T) {
	repo := New().Workflows()
	seedWorkflow(t, repo, "wf-1", nil)
	ctx := context.Background()

	errBoom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx usecase.WorkflowRepository) error {
		wf, err := tx.GetForUpdate(ctx, "wf-1")
		if err != nil {
			return err
		}
		wf.Status = domain.WorkflowStatusCancelled
		if err := tx.Update(ctx, *wf); err != nil {
			return err
		}
		again, err := tx.GetByID(ctx, "wf-1")
		if err != nil {
			return err
		}
		if again.Status != domain.WorkflowStatusCancelled {
			t.Errorf("expected buffered write to be visible inside tx, got %s", again.Status)
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected callback error, got %v", err)
	}

	wf, err := repo.GetByID(ctx, "wf-1")
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if wf.Status != domain.WorkflowStatusPending {
		t.Fatalf("expected rollback, got %s", wf.Status)
	}
}

func TestWorkflowRepository_WithTxCommits(t *testing.T) {
	repo := New().Workflows()
	seedWorkflow(t, repo, "wf-1", nil)
	ctx := context.Background()

	err := repo.WithTx(ctx, func(tx usecase.WorkflowRepository) error {
		wf, err := tx.GetForUpdate(ctx, "wf-1")
		if err != nil {
			return err
		}
		wf.Signers[0].Status = domain.SignerStatusSigned
		wf.CompletedSignatures = 1
		wf.Status = domain.WorkflowStatusCompleted
		return tx.Update(ctx, *wf)
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
	wf, err := repo.GetByID(ctx, "wf-1")
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if wf.Status != domain.WorkflowStatusCompleted || wf.Signers[0].Status != domain.SignerStatusSigned {
		t.Fatalf("expected committed update, got %+v", wf)
	}
}

func TestWorkflowRepository_ReturnsCopies(t *testing.T) {
	repo := New().Workflows()
	seedWorkflow(t, repo, "wf-1", nil)
	ctx := context.Background()

	wf, err := repo.GetByID(ctx, "wf-1")
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	wf.Signers[0].Status = domain.SignerStatusSkipped

	again, err := repo.GetByID(ctx, "wf-1")
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if again.Signers[0].Status != domain.SignerStatusPending {
		t.Fatal("expected stored workflow to be isolated from caller mutation")
	}
}

func TestWorkflowRepository_ListOverdueIDs(t *testing.T) {
	repo := New().Workflows()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	seedWorkflow(t, repo, "wf-past", &past)
	seedWorkflow(t, repo, "wf-future", &future)
	seedWorkflow(t, repo, "wf-none", nil)

	ids, err := repo.ListOverdueIDs(context.Background(), now)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(ids) != 1 || ids[0] != "wf-past" {
		t.Fatalf("expected only wf-past, got %v", ids)
	}
}
