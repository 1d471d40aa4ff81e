package domain

import "time"

type AuditActorType string

const (
	// AuditSystemTenantID is the reserved tenant identifier for events without a tenant.
	AuditSystemTenantID = "__system__"

	AuditActorSystem AuditActorType = "system"
	AuditActorUser   AuditActorType = "user"
)

type AuditEventType string

const (
	AuditEventCertificateStored  AuditEventType = "certificate_stored"
	AuditEventCertificateRevoked AuditEventType = "certificate_revoked"
	AuditEventSignatureCreated   AuditEventType = "signature_created"
	AuditEventSignatureRejected  AuditEventType = "signature_rejected"
	AuditEventSignatureRevoked   AuditEventType = "signature_revoked"
	AuditEventWorkflowCreated    AuditEventType = "workflow_created"
	AuditEventWorkflowCompleted  AuditEventType = "workflow_completed"
	AuditEventWorkflowCancelled  AuditEventType = "workflow_cancelled"
	AuditEventWorkflowExpired    AuditEventType = "workflow_expired"
)

type AuditTargetType string

const (
	AuditTargetCertificate AuditTargetType = "certificate"
	AuditTargetSignature   AuditTargetType = "signature"
	AuditTargetWorkflow    AuditTargetType = "workflow"
)

// AuditDetails is the closed set of fields an audit event may carry.
type AuditDetails struct {
	DocumentType string `json:"document_type,omitempty"`
	DocumentID   string `json:"document_id,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	Kind         string `json:"kind,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Status       string `json:"status,omitempty"`
}

type AuditEvent struct {
	ID          string
	TenantID    string
	EventType   AuditEventType
	ActorType   AuditActorType
	ActorIDHash string
	TargetType  AuditTargetType
	TargetID    string
	Details     AuditDetails
	CreatedAt   time.Time
}
