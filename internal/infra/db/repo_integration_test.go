//go:build integration
// +build integration

package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docsign/internal/domain"
	"docsign/internal/infra/crypto"
	"docsign/internal/testutil"
	"docsign/internal/usecase"

	"github.com/google/uuid"
)

func storedCertificate(t *testing.T, signerID string, notAfter time.Time) domain.StoredCertificate {
	t.Helper()
	opts := testutil.DefaultCertificateOptions(t)
	opts.NotAfter = notAfter
	opts.Serial = notAfter.Unix()
	certPEM := testutil.CertificatePEM(t, opts)
	info, err := crypto.ParseCertificatePEM([]byte(certPEM))
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return domain.StoredCertificate{
		ID:        uuid.NewString(),
		SignerID:  signerID,
		TenantID:  "tenant-1",
		Info:      info,
		PEM:       certPEM,
		Status:    domain.CertificateStatusActive,
		CreatedAt: time.Now().UTC(),
	}
}

func TestCertificateRepository_CreateFindRevoke(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	repo := NewCertificateRepository(gdb)
	ctx := context.Background()
	now := time.Now().UTC()

	short := storedCertificate(t, "signer-1", now.Add(48*time.Hour))
	long := storedCertificate(t, "signer-1", now.Add(365*24*time.Hour))
	for _, cert := range []domain.StoredCertificate{short, long} {
		if err := repo.Create(ctx, cert); err != nil {
			t.Fatalf("create certificate: %v", err)
		}
	}

	dup := short
	dup.ID = uuid.NewString()
	if err := repo.Create(ctx, dup); !errors.Is(err, domain.ErrDuplicateCertificate) {
		t.Fatalf("expected duplicate certificate, got %v", err)
	}

	active, err := repo.FindActive(ctx, "signer-1", "tenant-1", now)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if active.ID != long.ID {
		t.Fatalf("expected latest not-after certificate %s, got %s", long.ID, active.ID)
	}
	if active.Info.Subject.CommonName != "Alice Signer" {
		t.Fatalf("expected subject to round-trip, got %+v", active.Info.Subject)
	}

	revoked, err := repo.Revoke(ctx, long.ID, "key compromise", now)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked.Status != domain.CertificateStatusRevoked || revoked.RevocationReason != "key compromise" {
		t.Fatalf("unexpected revoked certificate: %+v", revoked)
	}
	again, err := repo.Revoke(ctx, long.ID, "superseded", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("revoke again: %v", err)
	}
	if again.RevocationReason != "key compromise" {
		t.Fatalf("expected first revocation to stick, got %q", again.RevocationReason)
	}

	active, err = repo.FindActive(ctx, "signer-1", "", now)
	if err != nil {
		t.Fatalf("find active after revoke: %v", err)
	}
	if active.ID != short.ID {
		t.Fatalf("expected fallback to %s, got %s", short.ID, active.ID)
	}

	expiring, err := repo.ListExpiring(ctx, now, now.Add(30*24*time.Hour))
	if err != nil {
		t.Fatalf("list expiring: %v", err)
	}
	if len(expiring) != 1 || expiring[0].ID != short.ID {
		t.Fatalf("expected only the short-lived certificate, got %+v", expiring)
	}

	if _, err := repo.GetByID(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func testSignature(signerID string) domain.Signature {
	return domain.Signature{
		ID:           uuid.NewString(),
		Document:     domain.DocumentRef{Type: "invoice", ID: "doc-1", TenantID: "tenant-1"},
		DocumentHash: crypto.HashDocument([]byte("content")),
		Kind:         domain.SignatureKindAttestation,
		Status:       domain.SignatureStatusSigned,
		SignerID:     signerID,
		SignerName:   "Alice",
		Algorithm:    domain.AlgorithmAttestation,
		Value:        domain.AttestationValue,
		Provenance:   domain.Provenance{IPAddress: "10.0.0.1"},
		SignedAt:     time.Now().UTC(),
	}
}

func TestSignatureRepository_PartialUniqueIndex(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	repo := NewSignatureRepository(gdb)
	ctx := context.Background()

	first := testSignature("signer-1")
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("create signature: %v", err)
	}
	if err := repo.Create(ctx, testSignature("signer-1")); !errors.Is(err, domain.ErrDuplicateSignature) {
		t.Fatalf("expected duplicate signature, got %v", err)
	}

	if _, err := repo.Transition(ctx, first.ID, domain.SignatureStatusRevoked, "mistake", "admin", time.Now()); err != nil {
		t.Fatalf("revoke signature: %v", err)
	}
	if _, err := repo.Transition(ctx, first.ID, domain.SignatureStatusRejected, "late", "admin", time.Now()); !errors.Is(err, domain.ErrSignatureFinalized) {
		t.Fatalf("expected finalized, got %v", err)
	}

	if err := repo.Create(ctx, testSignature("signer-1")); err != nil {
		t.Fatalf("re-sign after revoke: %v", err)
	}
	all, err := repo.ListByDocument(ctx, "doc-1", "tenant-1", "")
	if err != nil {
		t.Fatalf("list by document: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 signatures, got %d", len(all))
	}
	if all[0].Provenance.IPAddress != "10.0.0.1" {
		t.Fatalf("expected provenance to round-trip, got %+v", all[0].Provenance)
	}
}

func TestSignatureRepository_ConcurrentCreateOnlyOneWins(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	repo := NewSignatureRepository(gdb)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Create(context.Background(), testSignature("signer-1"))
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrDuplicateSignature):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one signed record, got %d", succeeded)
	}
}

func TestWorkflowRepository_WithTxAndListing(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	repo := NewWorkflowRepository(gdb)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	due := now.Add(-time.Minute)

	wf := domain.SignatureWorkflow{
		ID:           uuid.NewString(),
		Document:     domain.DocumentRef{Type: "contract", ID: "doc-9", TenantID: "tenant-1"},
		RequesterID:  "requester",
		Status:       domain.WorkflowStatusPending,
		TotalSigners: 2,
		DueDate:      &due,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, signerID := range []string{"alice", "bob"} {
		wf.Signers = append(wf.Signers, domain.Signer{
			ID:         uuid.NewString(),
			WorkflowID: wf.ID,
			SignerID:   signerID,
			Name:       signerID,
			Email:      signerID + "@example.test",
			Order:      i + 1,
			Required:   true,
			Status:     domain.SignerStatusPending,
		})
	}
	if err := repo.Create(ctx, wf); err != nil {
		t.Fatalf("create workflow: %v", err)
	}

	errBoom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx usecase.WorkflowRepository) error {
		locked, err := tx.GetForUpdate(ctx, wf.ID)
		if err != nil {
			return err
		}
		locked.Status = domain.WorkflowStatusCancelled
		if err := tx.Update(ctx, *locked); err != nil {
			return err
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected callback error, got %v", err)
	}
	got, err := repo.GetByID(ctx, wf.ID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if got.Status != domain.WorkflowStatusPending {
		t.Fatalf("expected rollback to keep pending, got %s", got.Status)
	}

	err = repo.WithTx(ctx, func(tx usecase.WorkflowRepository) error {
		locked, err := tx.GetForUpdate(ctx, wf.ID)
		if err != nil {
			return err
		}
		signedAt := now
		locked.Signers[0].Status = domain.SignerStatusSigned
		locked.Signers[0].SignedAt = &signedAt
		locked.CompletedSignatures = 1
		locked.Status = domain.WorkflowStatusInProgress
		return tx.Update(ctx, *locked)
	})
	if err != nil {
		t.Fatalf("commit step: %v", err)
	}

	listed, err := repo.ListBySigner(ctx, "bob", "tenant-1", "")
	if err != nil {
		t.Fatalf("list by signer: %v", err)
	}
	if len(listed) != 1 || len(listed[0].Signers) != 2 {
		t.Fatalf("expected one workflow with both signers, got %+v", listed)
	}
	if listed[0].Signers[0].Status != domain.SignerStatusSigned || listed[0].CompletedSignatures != 1 {
		t.Fatalf("expected committed step, got %+v", listed[0])
	}

	overdue, err := repo.ListOverdueIDs(ctx, now)
	if err != nil {
		t.Fatalf("list overdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0] != wf.ID {
		t.Fatalf("expected overdue workflow, got %v", overdue)
	}
}

func TestAuditEventRepository_AppendOnly(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	repo := NewAuditEventRepository(gdb)
	ctx := context.Background()

	targetID := uuid.NewString()
	event, err := repo.Append(ctx, domain.AuditEvent{
		TenantID:   "tenant-1",
		EventType:  domain.AuditEventSignatureCreated,
		ActorType:  domain.AuditActorUser,
		TargetType: domain.AuditTargetSignature,
		TargetID:   targetID,
		Details:    domain.AuditDetails{DocumentID: "doc-1", Kind: "attestation"},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := gdb.Exec("UPDATE audit_events SET event_type = 'tampered' WHERE id = ?", event.ID).Error; err == nil {
		t.Fatal("expected update to be rejected")
	}
	if err := gdb.Exec("DELETE FROM audit_events WHERE id = ?", event.ID).Error; err == nil {
		t.Fatal("expected delete to be rejected")
	}

	events, err := repo.ListByTarget(ctx, domain.AuditTargetSignature, targetID)
	if err != nil {
		t.Fatalf("list by target: %v", err)
	}
	if len(events) != 1 || events[0].Details.DocumentID != "doc-1" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestRepositories_NonUUIDIDIsNotFound(t *testing.T) {
	gdb := setupTestDB(t)
	resetDB(t, gdb)
	ctx := context.Background()
	now := time.Now().UTC()

	certs := NewCertificateRepository(gdb)
	if _, err := certs.GetByID(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("certificate get: expected not found, got %v", err)
	}
	if _, err := certs.Revoke(ctx, "abc", "lost", now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("certificate revoke: expected not found, got %v", err)
	}

	sigs := NewSignatureRepository(gdb)
	if _, err := sigs.GetByID(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("signature get: expected not found, got %v", err)
	}
	if _, err := sigs.Transition(ctx, "abc", domain.SignatureStatusRevoked, "r", "ops", now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("signature transition: expected not found, got %v", err)
	}
	if err := sigs.MarkVerified(ctx, "abc", domain.VerifyMethodAttestation, now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("mark verified: expected not found, got %v", err)
	}

	workflows := NewWorkflowRepository(gdb)
	if _, err := workflows.GetByID(ctx, "abc"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("workflow get: expected not found, got %v", err)
	}
	err := workflows.WithTx(ctx, func(repo usecase.WorkflowRepository) error {
		_, err := repo.GetForUpdate(ctx, "abc")
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("workflow get for update: expected not found, got %v", err)
	}

	verify := usecase.NewVerificationService(sigs, certs, &crypto.Service{}, nil, nil, nil)
	results, err := verify.BulkVerifySignatures(ctx, []string{"abc"})
	if err != nil {
		t.Fatalf("bulk verify: %v", err)
	}
	if results[0].Errors[0].Code != domain.VerifySignatureNotFound {
		t.Fatalf("expected SIGNATURE_NOT_FOUND, got %+v", results[0].Errors)
	}
}
