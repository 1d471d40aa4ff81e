package db

import (
	"time"

	"docsign/internal/domain"
)

type CertificateModel struct {
	ID               string                   `gorm:"type:uuid;primaryKey"`
	SignerID         string                   `gorm:"index;not null"`
	TenantID         string                   `gorm:"not null"`
	Subject          domain.DistinguishedName `gorm:"type:jsonb;serializer:json;not null"`
	Issuer           domain.DistinguishedName `gorm:"type:jsonb;serializer:json;not null"`
	SerialNumber     string                   `gorm:"not null"`
	NotBefore        time.Time                `gorm:"not null"`
	NotAfter         time.Time                `gorm:"not null"`
	Fingerprint      string                   `gorm:"not null"`
	PublicKeyPEM     string                   `gorm:"column:public_key_pem;not null"`
	KeyUsage         []string                 `gorm:"type:jsonb;serializer:json;not null"`
	CertificatePEM   string                   `gorm:"column:certificate_pem;not null"`
	Status           string                   `gorm:"not null"`
	RevokedAt        *time.Time
	RevocationReason *string
	CreatedAt        time.Time `gorm:"not null"`
}

func (CertificateModel) TableName() string { return "certificates" }

type SignatureModel struct {
	ID              string                     `gorm:"type:uuid;primaryKey"`
	DocumentType    string                     `gorm:"not null"`
	DocumentID      string                     `gorm:"index;not null"`
	TenantID        string                     `gorm:"not null"`
	DocumentHash    string                     `gorm:"not null"`
	SignatureKind   string                     `gorm:"not null"`
	SignatureStatus string                     `gorm:"not null"`
	SignerID        string                     `gorm:"not null"`
	SignerName      string                     `gorm:"not null"`
	SignerEmail     string                     `gorm:"not null"`
	SignerRole      string                     `gorm:"not null"`
	Certificate     domain.CertificateSnapshot `gorm:"type:jsonb;serializer:json;not null"`
	Algorithm       string                     `gorm:"not null"`
	SignatureValue  string                     `gorm:"not null"`
	Verified        bool                       `gorm:"not null"`
	VerifiedAt      *time.Time
	VerifyMethod    *string
	Provenance      domain.Provenance `gorm:"type:jsonb;serializer:json;not null"`
	SignedAt        time.Time         `gorm:"not null"`
	StatusReason    *string
	StatusActor     *string
	StatusChangedAt *time.Time
}

func (SignatureModel) TableName() string { return "signatures" }

type WorkflowModel struct {
	ID                  string `gorm:"type:uuid;primaryKey"`
	DocumentType        string `gorm:"not null"`
	DocumentID          string `gorm:"not null"`
	TenantID            string `gorm:"not null"`
	RequesterID         string `gorm:"not null"`
	RequesterName       string `gorm:"not null"`
	Status              string `gorm:"not null"`
	TotalSigners        int    `gorm:"not null"`
	CompletedSignatures int    `gorm:"not null"`
	DueDate             *time.Time
	CompletedAt         *time.Time
	VoidedAt            *time.Time
	VoidReason          *string
	VoidedBy            *string
	CreatedAt           time.Time             `gorm:"not null"`
	UpdatedAt           time.Time             `gorm:"not null"`
	Signers             []WorkflowSignerModel `gorm:"foreignKey:WorkflowID"`
}

func (WorkflowModel) TableName() string { return "signature_workflows" }

type WorkflowSignerModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	WorkflowID   string `gorm:"type:uuid;index;not null"`
	SignerID     string `gorm:"index;not null"`
	Name         string `gorm:"not null"`
	Email        string `gorm:"not null"`
	Role         string `gorm:"not null"`
	SigningOrder int    `gorm:"not null"`
	Required     bool   `gorm:"not null"`
	Status       string `gorm:"not null"`
	SignedAt     *time.Time
	SignatureID  *string `gorm:"type:uuid"`
}

func (WorkflowSignerModel) TableName() string { return "workflow_signers" }

type AuditEventModel struct {
	ID          string              `gorm:"type:uuid;primaryKey"`
	TenantID    string              `gorm:"index;not null"`
	EventType   string              `gorm:"not null"`
	ActorType   string              `gorm:"not null"`
	ActorIDHash *string
	TargetType  string              `gorm:"not null"`
	TargetID    string              `gorm:"not null"`
	Details     domain.AuditDetails `gorm:"type:jsonb;serializer:json;not null"`
	CreatedAt   time.Time           `gorm:"not null"`
}

func (AuditEventModel) TableName() string { return "audit_events" }
