package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"docsign/internal/domain"

	"go.uber.org/zap"
)

type CreateSignatureRequestParams struct {
	Document      domain.DocumentRef
	RequesterID   string
	RequesterName string
	Signers       []domain.SignerRequirement
	DueDate       *time.Time
}

// CreateSignatureRequest opens a pending workflow with one signer row per
// requirement, sorted by order. Contact lookup failures fall back to a
// placeholder address and never fail the request.
func (s *SignatureService) CreateSignatureRequest(ctx context.Context, params CreateSignatureRequestParams) (domain.SignatureWorkflow, error) {
	if s == nil || s.Workflows == nil {
		return domain.SignatureWorkflow{}, errors.New("workflow repository is required")
	}
	if err := validateDocument(params.Document); err != nil {
		return domain.SignatureWorkflow{}, err
	}
	if strings.TrimSpace(params.RequesterID) == "" {
		return domain.SignatureWorkflow{}, fmt.Errorf("%w: requester_id is required", domain.ErrInvalidInput)
	}
	if len(params.Signers) == 0 {
		return domain.SignatureWorkflow{}, fmt.Errorf("%w: at least one signer is required", domain.ErrInvalidInput)
	}
	now := s.now()
	if params.DueDate != nil && !params.DueDate.After(now) {
		return domain.SignatureWorkflow{}, fmt.Errorf("%w: due_date must be in the future", domain.ErrInvalidInput)
	}

	requirements := append([]domain.SignerRequirement(nil), params.Signers...)
	seen := make(map[string]struct{}, len(requirements))
	for _, req := range requirements {
		if strings.TrimSpace(req.SignerID) == "" {
			return domain.SignatureWorkflow{}, fmt.Errorf("%w: signer_id is required", domain.ErrInvalidInput)
		}
		if _, dup := seen[req.SignerID]; dup {
			return domain.SignatureWorkflow{}, fmt.Errorf("%w: signer %s listed twice", domain.ErrInvalidInput, req.SignerID)
		}
		seen[req.SignerID] = struct{}{}
	}
	sort.SliceStable(requirements, func(i, j int) bool {
		return requirements[i].Order < requirements[j].Order
	})

	wf := domain.SignatureWorkflow{
		ID:            s.newID(),
		Document:      params.Document,
		RequesterID:   params.RequesterID,
		RequesterName: params.RequesterName,
		Status:        domain.WorkflowStatusPending,
		TotalSigners:  len(requirements),
		CreatedAt:     now,
		UpdatedAt:     now,
		Signers:       make([]domain.Signer, 0, len(requirements)),
	}
	if params.DueDate != nil {
		due := params.DueDate.UTC()
		wf.DueDate = &due
	}
	for i, req := range requirements {
		order := req.Order
		if order <= 0 {
			order = i + 1
		}
		wf.Signers = append(wf.Signers, domain.Signer{
			ID:         s.newID(),
			WorkflowID: wf.ID,
			SignerID:   req.SignerID,
			Name:       req.Name,
			Email:      s.resolveEmail(ctx, req.SignerID, params.Document.TenantID),
			Role:       req.Role,
			Order:      order,
			Required:   req.Required,
			Status:     domain.SignerStatusPending,
		})
	}
	if err := s.Workflows.Create(ctx, wf); err != nil {
		return domain.SignatureWorkflow{}, err
	}
	s.log().Info("signature workflow created",
		zap.String("workflow_id", wf.ID),
		zap.String("document_id", wf.Document.ID),
		zap.Int("signers", wf.TotalSigners),
	)
	s.Audit.Record(ctx, wf.Document.TenantID, wf.RequesterID, domain.AuditEventWorkflowCreated, domain.AuditTargetWorkflow, wf.ID, domain.AuditDetails{
		DocumentType: wf.Document.Type,
		DocumentID:   wf.Document.ID,
		Status:       string(wf.Status),
	})
	return wf, nil
}

func (s *SignatureService) GetSignatureRequest(ctx context.Context, workflowID string) (domain.SignatureWorkflow, error) {
	if s == nil || s.Workflows == nil {
		return domain.SignatureWorkflow{}, errors.New("workflow repository is required")
	}
	wf, err := s.Workflows.GetByID(ctx, workflowID)
	if err != nil {
		return domain.SignatureWorkflow{}, err
	}
	return *wf, nil
}

func (s *SignatureService) GetUserSignatureRequests(ctx context.Context, signerID, tenantID string, status domain.WorkflowStatus) ([]domain.SignatureWorkflow, error) {
	if s == nil || s.Workflows == nil {
		return nil, errors.New("workflow repository is required")
	}
	if strings.TrimSpace(signerID) == "" {
		return nil, fmt.Errorf("%w: signer_id is required", domain.ErrInvalidInput)
	}
	return s.Workflows.ListBySigner(ctx, signerID, tenantID, status)
}

// CompleteSignatureRequestStep marks the signer signed and completes the
// workflow once no signer is pending. The workflow row stays locked for the
// whole read-modify-write, so exactly one caller observes the completion and
// fires the completion notice. Order is not enforced.
func (s *SignatureService) CompleteSignatureRequestStep(ctx context.Context, workflowID, signerID, signatureID string) (domain.SignatureWorkflow, error) {
	if s == nil || s.Workflows == nil {
		return domain.SignatureWorkflow{}, errors.New("workflow repository is required")
	}
	if strings.TrimSpace(signatureID) == "" {
		return domain.SignatureWorkflow{}, fmt.Errorf("%w: signature_id is required", domain.ErrInvalidInput)
	}
	var sig *domain.Signature
	if s.Signatures != nil {
		found, err := s.Signatures.GetByID(ctx, signatureID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.SignatureWorkflow{}, fmt.Errorf("%w: signature %s does not exist", domain.ErrInvalidInput, signatureID)
			}
			return domain.SignatureWorkflow{}, err
		}
		if found.SignerID != signerID || found.Status != domain.SignatureStatusSigned {
			return domain.SignatureWorkflow{}, fmt.Errorf("%w: signature is not a signed record of this signer", domain.ErrInvalidInput)
		}
		sig = found
	}

	now := s.now()
	var outcome domain.StepOutcome
	err := s.Workflows.WithTx(ctx, func(repo WorkflowRepository) error {
		wf, err := repo.GetForUpdate(ctx, workflowID)
		if err != nil {
			return err
		}
		if wf.Status.IsTerminal() {
			return domain.ErrWorkflowClosed
		}
		if sig != nil && (sig.Document.ID != wf.Document.ID || sig.Document.TenantID != wf.Document.TenantID) {
			return fmt.Errorf("%w: signature belongs to another document", domain.ErrInvalidInput)
		}
		idx := -1
		for i := range wf.Signers {
			if wf.Signers[i].SignerID == signerID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domain.ErrSignerNotFound
		}
		if wf.Signers[idx].Status != domain.SignerStatusPending {
			return domain.ErrSignerAlreadySigned
		}
		signedAt := now
		wf.Signers[idx].Status = domain.SignerStatusSigned
		wf.Signers[idx].SignedAt = &signedAt
		wf.Signers[idx].SignatureID = signatureID

		wf.CompletedSignatures = countSigned(wf.Signers)
		wf.UpdatedAt = now
		if len(wf.PendingSigners()) == 0 {
			completedAt := now
			wf.Status = domain.WorkflowStatusCompleted
			wf.CompletedAt = &completedAt
			outcome.Completed = true
		} else {
			wf.Status = domain.WorkflowStatusInProgress
		}
		if err := repo.Update(ctx, *wf); err != nil {
			return err
		}
		outcome.Workflow = *wf
		return nil
	})
	if err != nil {
		return domain.SignatureWorkflow{}, err
	}

	wf := outcome.Workflow
	s.log().Info("signature step completed",
		zap.String("workflow_id", wf.ID),
		zap.Int("completed_signatures", wf.CompletedSignatures),
		zap.Int("total_signers", wf.TotalSigners),
	)
	if outcome.Completed {
		s.onCompleted(ctx, wf)
	}
	return wf, nil
}

func (s *SignatureService) onCompleted(ctx context.Context, wf domain.SignatureWorkflow) {
	s.log().Info("signature workflow completed", zap.String("workflow_id", wf.ID))
	s.Audit.Record(ctx, wf.Document.TenantID, "", domain.AuditEventWorkflowCompleted, domain.AuditTargetWorkflow, wf.ID, domain.AuditDetails{
		DocumentType: wf.Document.Type,
		DocumentID:   wf.Document.ID,
		Status:       string(wf.Status),
	})
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.WorkflowCompleted(ctx, wf); err != nil {
		s.log().Warn("completion notice failed", zap.String("workflow_id", wf.ID), zap.Error(err))
	}
}

// CancelSignatureRequest voids an open workflow and skips every pending signer.
func (s *SignatureService) CancelSignatureRequest(ctx context.Context, workflowID, cancelledBy, reason string) (domain.SignatureWorkflow, error) {
	if s == nil || s.Workflows == nil {
		return domain.SignatureWorkflow{}, errors.New("workflow repository is required")
	}
	now := s.now()
	var out domain.SignatureWorkflow
	err := s.Workflows.WithTx(ctx, func(repo WorkflowRepository) error {
		wf, err := repo.GetForUpdate(ctx, workflowID)
		if err != nil {
			return err
		}
		if wf.Status.IsTerminal() {
			return domain.ErrWorkflowClosed
		}
		voidedAt := now
		wf.Status = domain.WorkflowStatusCancelled
		wf.VoidedAt = &voidedAt
		wf.VoidReason = reason
		wf.VoidedBy = cancelledBy
		wf.UpdatedAt = now
		skipPending(wf)
		if err := repo.Update(ctx, *wf); err != nil {
			return err
		}
		out = *wf
		return nil
	})
	if err != nil {
		return domain.SignatureWorkflow{}, err
	}
	s.log().Info("signature workflow cancelled", zap.String("workflow_id", out.ID))
	s.Audit.Record(ctx, out.Document.TenantID, cancelledBy, domain.AuditEventWorkflowCancelled, domain.AuditTargetWorkflow, out.ID, domain.AuditDetails{
		DocumentType: out.Document.Type,
		DocumentID:   out.Document.ID,
		Reason:       reason,
		Status:       string(out.Status),
	})
	return out, nil
}

// ExpireOverdueSignatureRequests expires open workflows whose due date has
// passed. Eligibility is re-checked under the row lock, so a workflow that
// completed concurrently stays completed. Re-running is a no-op.
func (s *SignatureService) ExpireOverdueSignatureRequests(ctx context.Context) (int, error) {
	if s == nil || s.Workflows == nil {
		return 0, errors.New("workflow repository is required")
	}
	now := s.now()
	ids, err := s.Workflows.ListOverdueIDs(ctx, now)
	if err != nil {
		return 0, err
	}
	expired := 0
	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var flipped *domain.SignatureWorkflow
		err := s.Workflows.WithTx(ctx, func(repo WorkflowRepository) error {
			wf, err := repo.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if !wf.Status.IsOpen() || wf.DueDate == nil || wf.DueDate.After(now) {
				return nil
			}
			wf.Status = domain.WorkflowStatusExpired
			wf.UpdatedAt = now
			skipPending(wf)
			if err := repo.Update(ctx, *wf); err != nil {
				return err
			}
			flipped = wf
			return nil
		})
		if err != nil {
			s.log().Warn("workflow expiry failed", zap.String("workflow_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("expire workflow %s: %w", id, err))
			continue
		}
		if flipped == nil {
			continue
		}
		expired++
		s.Audit.Record(ctx, flipped.Document.TenantID, "", domain.AuditEventWorkflowExpired, domain.AuditTargetWorkflow, flipped.ID, domain.AuditDetails{
			DocumentType: flipped.Document.Type,
			DocumentID:   flipped.Document.ID,
			Status:       string(flipped.Status),
		})
	}
	s.log().Info("overdue workflows expired", zap.Int("candidates", len(ids)), zap.Int("expired", expired))
	return expired, errors.Join(errs...)
}

func (s *SignatureService) resolveEmail(ctx context.Context, signerID, tenantID string) string {
	if s.Identity != nil {
		email, err := s.Identity.LookupEmail(ctx, signerID, tenantID)
		if err == nil && strings.TrimSpace(email) != "" {
			return email
		}
		s.log().Warn("signer contact lookup failed; using placeholder",
			zap.String("signer_id", signerID),
			zap.Error(err),
		)
	} else {
		s.log().Warn("no identity lookup configured; using placeholder", zap.String("signer_id", signerID))
	}
	return PlaceholderEmail(signerID)
}

// PlaceholderEmail is the undeliverable address recorded when lookup fails.
func PlaceholderEmail(signerID string) string {
	local := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '-'
		}
	}, signerID)
	return "signer-" + local + "@unknown.invalid"
}

func countSigned(signers []domain.Signer) int {
	n := 0
	for _, signer := range signers {
		if signer.Status == domain.SignerStatusSigned {
			n++
		}
	}
	return n
}

func skipPending(wf *domain.SignatureWorkflow) {
	for i := range wf.Signers {
		if wf.Signers[i].Status == domain.SignerStatusPending {
			wf.Signers[i].Status = domain.SignerStatusSkipped
		}
	}
}
