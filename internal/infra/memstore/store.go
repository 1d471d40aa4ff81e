// Package memstore implements the persistence ports in memory. All
// repositories of one Store share a single mutex.
package memstore

import (
	"sync"

	"docsign/internal/domain"
)

type Store struct {
	mu         sync.Mutex
	certs      map[string]domain.StoredCertificate
	signatures map[string]domain.Signature
	workflows  map[string]domain.SignatureWorkflow
	audit      []domain.AuditEvent
}

func New() *Store {
	return &Store{
		certs:      make(map[string]domain.StoredCertificate),
		signatures: make(map[string]domain.Signature),
		workflows:  make(map[string]domain.SignatureWorkflow),
	}
}

func (s *Store) Certificates() *CertificateRepository {
	return &CertificateRepository{store: s}
}

func (s *Store) Signatures() *SignatureRepository {
	return &SignatureRepository{store: s}
}

func (s *Store) Workflows() *WorkflowRepository {
	return &WorkflowRepository{store: s}
}

func (s *Store) AuditEvents() *AuditEventRepository {
	return &AuditEventRepository{store: s}
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
