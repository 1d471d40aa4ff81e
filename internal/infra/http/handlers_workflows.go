package http

import (
	"net/http"
	"strings"
	"time"

	"docsign/internal/domain"
	"docsign/internal/infra/auth/rbac"
	"docsign/internal/infra/metrics"
	"docsign/internal/usecase"

	"github.com/gin-gonic/gin"
)

type createWorkflowRequest struct {
	documentInput
	RequesterID   string                     `json:"requester_id"`
	RequesterName string                     `json:"requester_name"`
	Signers       []domain.SignerRequirement `json:"signers"`
	DueDate       *time.Time                 `json:"due_date"`
}

type completeStepRequest struct {
	SignerID    string `json:"signer_id"`
	SignatureID string `json:"signature_id"`
}

type cancelWorkflowRequest struct {
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by"`
}

type auditEventResponse struct {
	ID          string                 `json:"id"`
	TenantID    string                 `json:"tenant_id"`
	EventType   domain.AuditEventType  `json:"event_type"`
	ActorType   domain.AuditActorType  `json:"actor_type"`
	ActorIDHash string                 `json:"actor_id_hash,omitempty"`
	TargetType  domain.AuditTargetType `json:"target_type"`
	TargetID    string                 `json:"target_id"`
	Details     domain.AuditDetails    `json:"details"`
	CreatedAt   time.Time              `json:"created_at"`
}

func (s *Server) handleCreateWorkflow(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	tenantID := c.Param("tenant_id")
	principal, ok := s.requireAuth(c, rbac.PermWorkflowsWrite, tenantID, false)
	if !ok {
		return
	}
	var req createWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	requesterName := strings.TrimSpace(req.RequesterName)
	if requesterName == "" {
		requesterName = principal.Name
	}
	wf, err := s.signatures.CreateSignatureRequest(c.Request.Context(), usecase.CreateSignatureRequestParams{
		Document: domain.DocumentRef{
			Type:     strings.TrimSpace(req.DocumentType),
			ID:       strings.TrimSpace(req.DocumentID),
			TenantID: tenantID,
		},
		RequesterID:   actorID(principal, req.RequesterID),
		RequesterName: requesterName,
		Signers:       req.Signers,
		DueDate:       req.DueDate,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.WorkflowTransitionsTotal.WithLabelValues(string(wf.Status)).Inc()
	c.JSON(http.StatusCreated, wf)
}

func (s *Server) handleGetWorkflow(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	principal, ok := s.requireAuth(c, rbac.PermWorkflowsRead, "", false)
	if !ok {
		return
	}
	wf, err := s.signatures.GetSignatureRequest(c.Request.Context(), c.Param("workflow_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !s.authorizeTenant(c, principal, wf.Document.TenantID, rbac.PermWorkflowsRead) {
		return
	}
	c.JSON(http.StatusOK, wf)
}

func (s *Server) handleSignerWorkflows(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	tenantID := c.Param("tenant_id")
	if _, ok := s.requireAuth(c, rbac.PermWorkflowsRead, tenantID, false); !ok {
		return
	}
	status := domain.WorkflowStatus(strings.TrimSpace(c.Query("status")))
	workflows, err := s.signatures.GetUserSignatureRequests(c.Request.Context(), c.Param("signer_id"), tenantID, status)
	if err != nil {
		writeError(c, err)
		return
	}
	if workflows == nil {
		workflows = []domain.SignatureWorkflow{}
	}
	c.JSON(http.StatusOK, gin.H{"workflows": workflows})
}

// loadWorkflowForWrite fetches the workflow only to learn its tenant before a mutation.
func (s *Server) loadWorkflowForWrite(c *gin.Context, principal domain.Principal) (domain.SignatureWorkflow, bool) {
	wf, err := s.signatures.GetSignatureRequest(c.Request.Context(), c.Param("workflow_id"))
	if err != nil {
		writeError(c, err)
		return domain.SignatureWorkflow{}, false
	}
	if !s.authorizeTenant(c, principal, wf.Document.TenantID, rbac.PermWorkflowsWrite) {
		return domain.SignatureWorkflow{}, false
	}
	return wf, true
}

func (s *Server) handleCompleteStep(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	principal, ok := s.requireAuth(c, rbac.PermWorkflowsWrite, "", false)
	if !ok {
		return
	}
	var req completeStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	current, ok := s.loadWorkflowForWrite(c, principal)
	if !ok {
		return
	}
	signerID, ok := s.authorizeSigner(c, principal, current.Document.TenantID, req.SignerID, rbac.PermWorkflowsWrite)
	if !ok {
		return
	}
	wf, err := s.signatures.CompleteSignatureRequestStep(c.Request.Context(), c.Param("workflow_id"), signerID, strings.TrimSpace(req.SignatureID))
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.WorkflowTransitionsTotal.WithLabelValues(string(wf.Status)).Inc()
	c.JSON(http.StatusOK, wf)
}

func (s *Server) handleCancelWorkflow(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	principal, ok := s.requireAuth(c, rbac.PermWorkflowsWrite, "", false)
	if !ok {
		return
	}
	var req cancelWorkflowRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if _, ok := s.loadWorkflowForWrite(c, principal); !ok {
		return
	}
	wf, err := s.signatures.CancelSignatureRequest(c.Request.Context(), c.Param("workflow_id"), actorID(principal, req.CancelledBy), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	metrics.WorkflowTransitionsTotal.WithLabelValues(string(wf.Status)).Inc()
	c.JSON(http.StatusOK, wf)
}

func (s *Server) handleExpireWorkflows(c *gin.Context) {
	if s.signatures == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	if _, ok := s.requireAuth(c, rbac.PermAdminSweep, "", true); !ok {
		return
	}
	expired, err := s.signatures.ExpireOverdueSignatureRequests(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if expired > 0 {
		metrics.WorkflowTransitionsTotal.WithLabelValues(string(domain.WorkflowStatusExpired)).Add(float64(expired))
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}

func (s *Server) handleAuditTrail(c *gin.Context) {
	if s.auditEvents == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	if _, ok := s.requireAuth(c, rbac.PermAdminAudit, "", true); !ok {
		return
	}
	targetType := domain.AuditTargetType(c.Param("target_type"))
	switch targetType {
	case domain.AuditTargetCertificate, domain.AuditTargetSignature, domain.AuditTargetWorkflow:
	default:
		writeErrorCode(c, http.StatusBadRequest, "INVALID_INPUT", "unknown audit target type")
		return
	}
	events, err := s.auditEvents.ListByTarget(c.Request.Context(), targetType, c.Param("target_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, auditEventResponse{
			ID:          event.ID,
			TenantID:    event.TenantID,
			EventType:   event.EventType,
			ActorType:   event.ActorType,
			ActorIDHash: event.ActorIDHash,
			TargetType:  event.TargetType,
			TargetID:    event.TargetID,
			Details:     event.Details,
			CreatedAt:   event.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"events": out})
}
