package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"docsign/internal/domain"
	cryptoinfra "docsign/internal/infra/crypto"
	"docsign/internal/infra/memstore"
	"docsign/internal/testutil"
	"docsign/internal/usecase"
)

type fixture struct {
	mu       sync.Mutex
	now      time.Time
	store    *memstore.Store
	certs    *usecase.CertificateManager
	sigs     *usecase.SignatureService
	verify   *usecase.VerificationService
	notifier *recordingNotifier
	identity *stubIdentity
	audit    *usecase.AuditEmitter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		now:      time.Now().UTC(),
		store:    memstore.New(),
		notifier: &recordingNotifier{},
		identity: &stubIdentity{emails: map[string]string{}},
	}
	crypto := &cryptoinfra.Service{}
	f.audit = usecase.NewAuditEmitter(f.store.AuditEvents(), f.clock, nil)

	f.certs = usecase.NewCertificateManager(f.store.Certificates(), crypto, nil, f.clock)
	f.certs.Notifier = f.notifier
	f.certs.Audit = f.audit

	f.sigs = usecase.NewSignatureService(f.certs, f.store.Signatures(), f.store.Workflows(), crypto, nil, f.clock)
	f.sigs.Notifier = f.notifier
	f.sigs.Identity = f.identity
	f.sigs.Audit = f.audit

	f.verify = usecase.NewVerificationService(f.store.Signatures(), f.store.Certificates(), crypto, nil, nil, f.clock)
	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// enroll stores a year-long signing certificate for signerID backed by testutil key keyIndex.
func (f *fixture) enroll(t *testing.T, signerID string, keyIndex int) domain.StoredCertificate {
	t.Helper()
	opts := testutil.DefaultCertificateOptions(t)
	opts.CommonName = signerID
	opts.Key = testutil.RSAKey(t, keyIndex)
	opts.Serial = int64(1000 + keyIndex)
	cert, err := f.certs.StoreCertificate(context.Background(), signerID, "tenant-1", []byte(testutil.CertificatePEM(t, opts)))
	if err != nil {
		t.Fatalf("store certificate for %s: %v", signerID, err)
	}
	return cert
}

func testDocument(id string) domain.DocumentRef {
	return domain.DocumentRef{Type: "agreement", ID: id, TenantID: "tenant-1"}
}

type recordingNotifier struct {
	mu        sync.Mutex
	completed []string
	expiring  []string
	failFor   map[string]bool
}

func (n *recordingNotifier) WorkflowCompleted(ctx context.Context, wf domain.SignatureWorkflow) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, wf.ID)
	return nil
}

func (n *recordingNotifier) CertificateExpiring(ctx context.Context, cert domain.StoredCertificate, daysLeft int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[cert.ID] {
		return errors.New("smtp down")
	}
	n.expiring = append(n.expiring, cert.ID)
	return nil
}

func (n *recordingNotifier) completedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.completed)
}

type stubIdentity struct {
	emails map[string]string
	err    error
}

func (s *stubIdentity) LookupEmail(ctx context.Context, signerID, tenantID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	email, ok := s.emails[signerID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return email, nil
}
