package domain

import "time"

type WorkflowStatus string

const (
	WorkflowStatusDraft      WorkflowStatus = "draft"
	WorkflowStatusPending    WorkflowStatus = "pending"
	WorkflowStatusInProgress WorkflowStatus = "in_progress"
	WorkflowStatusCompleted  WorkflowStatus = "completed"
	WorkflowStatusExpired    WorkflowStatus = "expired"
	WorkflowStatusCancelled  WorkflowStatus = "cancelled"
)

// IsTerminal reports whether no signer state may change any more.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusExpired, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the workflow can still expire.
func (s WorkflowStatus) IsOpen() bool {
	return s == WorkflowStatusPending || s == WorkflowStatusInProgress
}

type SignerStatus string

const (
	SignerStatusPending SignerStatus = "pending"
	SignerStatusSigned  SignerStatus = "signed"
	SignerStatusSkipped SignerStatus = "skipped"
)

// SignerRequirement is one requested participant when a workflow is created.
// Order is a presentation hint and is not enforced when steps complete.
type SignerRequirement struct {
	SignerID string `json:"signer_id"`
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Order    int    `json:"order"`
	Required bool   `json:"required"`
}

type Signer struct {
	ID          string       `json:"id"`
	WorkflowID  string       `json:"workflow_id"`
	SignerID    string       `json:"signer_id"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Role        string       `json:"role,omitempty"`
	Order       int          `json:"order"`
	Required    bool         `json:"required"`
	Status      SignerStatus `json:"status"`
	SignedAt    *time.Time   `json:"signed_at,omitempty"`
	SignatureID string       `json:"signature_id,omitempty"`
}

type SignatureWorkflow struct {
	ID                  string         `json:"id"`
	Document            DocumentRef    `json:"document"`
	RequesterID         string         `json:"requester_id"`
	RequesterName       string         `json:"requester_name"`
	Status              WorkflowStatus `json:"status"`
	TotalSigners        int            `json:"total_signers"`
	CompletedSignatures int            `json:"completed_signatures"`
	DueDate             *time.Time     `json:"due_date,omitempty"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	VoidedAt            *time.Time     `json:"voided_at,omitempty"`
	VoidReason          string         `json:"void_reason,omitempty"`
	VoidedBy            string         `json:"voided_by,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	Signers             []Signer       `json:"signers"`
}

// PendingSigners returns the signers that have not left pending.
func (w SignatureWorkflow) PendingSigners() []Signer {
	out := make([]Signer, 0, len(w.Signers))
	for _, s := range w.Signers {
		if s.Status == SignerStatusPending {
			out = append(out, s)
		}
	}
	return out
}

// StepOutcome describes the result of one completed signer step.
type StepOutcome struct {
	Workflow SignatureWorkflow
	// Completed is true only for the call whose update moved the workflow to completed.
	Completed bool
}
