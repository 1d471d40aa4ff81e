package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docsign/internal/config"
	"docsign/internal/domain"
	"docsign/internal/infra/auth/jwt"
	"docsign/internal/infra/auth/rbac"
	cryptoinfra "docsign/internal/infra/crypto"
	"docsign/internal/infra/memstore"
	"docsign/internal/infra/ratelimit"
	"docsign/internal/testutil"
	"docsign/internal/usecase"

	"github.com/gin-gonic/gin"
)

const testTenant = "tenant-1"

type testEnv struct {
	server *Server
	store  *memstore.Store
}

func newTestEnv(t *testing.T, cfg config.Config, mutate func(*ServerDeps)) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if cfg.AuthMode == "" {
		cfg.AuthMode = "none"
	}
	store := memstore.New()
	crypto := &cryptoinfra.Service{}
	audit := usecase.NewAuditEmitter(store.AuditEvents(), nil, nil)

	certs := usecase.NewCertificateManager(store.Certificates(), crypto, nil, nil)
	certs.Audit = audit
	sigs := usecase.NewSignatureService(certs, store.Signatures(), store.Workflows(), crypto, nil, nil)
	sigs.Audit = audit
	verify := usecase.NewVerificationService(store.Signatures(), store.Certificates(), crypto, nil, nil, nil)

	deps := ServerDeps{
		Certificates: certs,
		Signatures:   sigs,
		Verification: verify,
		AuditEvents:  store.AuditEvents(),
		StoreMode:    StoreModeMemory,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &testEnv{server: NewServerWithDeps(cfg, deps), store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.server.r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, strings.TrimSpace(w.Body.String()))
	}
}

func assertErrorCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, w.Code, strings.TrimSpace(w.Body.String()))
	}
	var resp errorResponse
	decode(t, w, &resp)
	if resp.Code != code {
		t.Fatalf("expected error code %s, got %s", code, resp.Code)
	}
}

func encoded(content []byte) *string {
	return field(base64.StdEncoding.EncodeToString(content))
}

func field(value string) *string {
	return &value
}

func certificatePEM(t *testing.T, commonName string, keyIndex int) string {
	t.Helper()
	opts := testutil.DefaultCertificateOptions(t)
	opts.CommonName = commonName
	opts.Key = testutil.RSAKey(t, keyIndex)
	opts.Serial = int64(500 + keyIndex)
	return testutil.CertificatePEM(t, opts)
}

func (e *testEnv) enroll(t *testing.T, signerID string, keyIndex int) certificateResponse {
	t.Helper()
	return e.enrollPEM(t, signerID, certificatePEM(t, signerID, keyIndex))
}

func (e *testEnv) enrollPEM(t *testing.T, signerID, certPEM string) certificateResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/certificates", storeCertificateRequest{
		SignerID:       signerID,
		CertificatePEM: certPEM,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, strings.TrimSpace(w.Body.String()))
	}
	var cert certificateResponse
	decode(t, w, &cert)
	return cert
}

func (e *testEnv) attest(t *testing.T, docID, signerID string) domain.SignatureResult {
	t.Helper()
	w := e.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/signatures/attestation", signRequest{
		documentInput: documentInput{DocumentType: "contract", DocumentID: docID},
		SignerID:      signerID,
		SignerName:    signerID,
	}, map[string]string{"User-Agent": "docsign-test"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, strings.TrimSpace(w.Body.String()))
	}
	var result domain.SignatureResult
	decode(t, w, &result)
	return result
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	w := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	decode(t, w, &resp)
	if resp["mode"] != StoreModeMemory {
		t.Fatalf("expected no-db mode, got %q", resp["mode"])
	}
}

func TestNoRoute(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	assertErrorCode(t, env.do(t, http.MethodGet, "/v1/unknown", nil, nil), http.StatusNotFound, "NOT_FOUND")
}

func TestMissingAuthModeFailsRun(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewServerWithDeps(config.Config{}, ServerDeps{})
	if srv.Err() == nil {
		t.Fatal("expected AUTH_MODE error")
	}
	if err := srv.Run(); err == nil || !strings.Contains(err.Error(), "AUTH_MODE") {
		t.Fatalf("expected AUTH_MODE error from Run, got %v", err)
	}
}

func TestHashEndpoints(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	w := env.do(t, http.MethodPost, "/v1/documents/hash", hashDocumentRequest{
		ContentBase64: encoded([]byte("hello")),
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp hashResponse
	decode(t, w, &resp)
	if resp.DocumentHash != cryptoinfra.HashDocument([]byte("hello")) || len(resp.DocumentHash) != 128 {
		t.Fatalf("unexpected hash %q", resp.DocumentHash)
	}

	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/documents/hash", hashDocumentRequest{ContentBase64: field("!!")}, nil),
		http.StatusBadRequest, "INVALID_CONTENT_ENCODING")

	w = env.do(t, http.MethodPost, "/v1/documents/hash-reference", hashReferenceRequest{
		DocumentType: "invoice", DocumentID: "doc-1", TenantID: testTenant,
	}, nil)
	var ref hashResponse
	decode(t, w, &ref)
	again := env.do(t, http.MethodPost, "/v1/documents/hash-reference", hashReferenceRequest{
		DocumentType: "invoice", DocumentID: "doc-1", TenantID: testTenant,
	}, nil)
	var refAgain hashResponse
	decode(t, again, &refAgain)
	if ref.DocumentHash == "" || ref.DocumentHash != refAgain.DocumentHash {
		t.Fatalf("expected deterministic reference hash, got %q and %q", ref.DocumentHash, refAgain.DocumentHash)
	}
}

func TestCertificateEndpoints(t *testing.T) {
	env := newTestEnv(t, config.Config{AdminAPIKey: "admin-secret"}, nil)
	certPEM := certificatePEM(t, "alice", 0)
	cert := env.enrollPEM(t, "alice", certPEM)
	if cert.Status != domain.CertificateStatusActive || cert.Subject.CommonName != "alice" {
		t.Fatalf("unexpected certificate: %+v", cert)
	}

	dup := env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/certificates", storeCertificateRequest{
		SignerID:       "alice",
		CertificatePEM: certPEM,
	}, nil)
	assertErrorCode(t, dup, http.StatusConflict, "DUPLICATE_CERTIFICATE")

	w := env.do(t, http.MethodGet, "/v1/tenants/"+testTenant+"/signers/alice/certificate", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	assertErrorCode(t, env.do(t, http.MethodGet, "/v1/tenants/"+testTenant+"/signers/bob/certificate", nil, nil),
		http.StatusNotFound, "NO_ACTIVE_CERTIFICATE")

	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/certificates/"+cert.ID+"/revoke", revokeRequest{Reason: "compromised"}, nil),
		http.StatusUnauthorized, "UNAUTHORIZED")
	w = env.do(t, http.MethodPost, "/v1/certificates/"+cert.ID+"/revoke", revokeRequest{Reason: "compromised"},
		map[string]string{"X-Admin-Key": "admin-secret"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var revoked certificateResponse
	decode(t, w, &revoked)
	if revoked.Status != domain.CertificateStatusRevoked || revoked.RevocationReason != "compromised" {
		t.Fatalf("unexpected revoked certificate: %+v", revoked)
	}

	events := env.do(t, http.MethodGet, "/v1/admin/audit/certificate/"+cert.ID, nil, map[string]string{"X-Admin-Key": "admin-secret"})
	var trail struct {
		Events []auditEventResponse `json:"events"`
	}
	decode(t, events, &trail)
	if len(trail.Events) != 2 || trail.Events[1].EventType != domain.AuditEventCertificateRevoked {
		t.Fatalf("unexpected audit trail: %+v", trail.Events)
	}
}

func TestStoreCertificateRejectsInvalidWithDetails(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	opts := testutil.DefaultCertificateOptions(t)
	opts.Organization = ""
	opts.NotAfter = time.Now().UTC().Add(-time.Hour)
	opts.NotBefore = time.Now().UTC().Add(-48 * time.Hour)

	w := env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/certificates", storeCertificateRequest{
		SignerID:       "alice",
		CertificatePEM: testutil.CertificatePEM(t, opts),
	}, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Code    string `json:"code"`
		Details struct {
			Errors []domain.ValidationIssue `json:"errors"`
		} `json:"details"`
	}
	decode(t, w, &resp)
	if resp.Code != "INVALID_CERTIFICATE" || len(resp.Details.Errors) < 2 {
		t.Fatalf("expected itemized validation errors, got %+v", resp)
	}

	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/certificates/parse", certificatePEMRequest{CertificatePEM: "garbage"}, nil),
		http.StatusBadRequest, "MALFORMED_CERTIFICATE")
}

func TestAttestationSignAndVerify(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.enroll(t, "alice", 0)

	result := env.attest(t, "doc-1", "alice")
	if result.Kind != domain.SignatureKindAttestation || result.Value != domain.AttestationValue {
		t.Fatalf("unexpected signature result: %+v", result)
	}

	dup := env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/signatures/attestation", signRequest{
		documentInput: documentInput{DocumentType: "contract", DocumentID: "doc-1"},
		SignerID:      "alice",
	}, nil)
	assertErrorCode(t, dup, http.StatusConflict, "DUPLICATE_SIGNATURE")

	noCert := env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/signatures/attestation", signRequest{
		documentInput: documentInput{DocumentType: "contract", DocumentID: "doc-1"},
		SignerID:      "bob",
	}, nil)
	assertErrorCode(t, noCert, http.StatusUnprocessableEntity, "NO_ACTIVE_CERTIFICATE")

	w := env.do(t, http.MethodGet, "/v1/signatures/"+result.SignatureID, nil, nil)
	var sig signatureResponse
	decode(t, w, &sig)
	if sig.Provenance.UserAgent != "docsign-test" || sig.Provenance.IPAddress == "" {
		t.Fatalf("expected provenance from request, got %+v", sig.Provenance)
	}

	w = env.do(t, http.MethodPost, "/v1/signatures/"+result.SignatureID+"/verify", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var verification domain.VerificationResult
	decode(t, w, &verification)
	if !verification.IsValid || verification.Method != domain.VerifyMethodAttestation {
		t.Fatalf("expected valid attestation, got %+v", verification)
	}

	list := env.do(t, http.MethodGet, "/v1/tenants/"+testTenant+"/documents/doc-1/signatures", nil, nil)
	var summaries struct {
		Signatures []domain.SignatureSummary `json:"signatures"`
	}
	decode(t, list, &summaries)
	if len(summaries.Signatures) != 1 || summaries.Signatures[0].SignerID != "alice" {
		t.Fatalf("unexpected summaries: %+v", summaries.Signatures)
	}

	reject := env.do(t, http.MethodPost, "/v1/signatures/"+result.SignatureID+"/reject", finalizeRequest{Reason: "wrong doc", Actor: "alice"}, nil)
	if reject.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", reject.Code, reject.Body.String())
	}
	again := env.do(t, http.MethodPost, "/v1/signatures/"+result.SignatureID+"/reject", finalizeRequest{Reason: "again"}, nil)
	assertErrorCode(t, again, http.StatusConflict, "SIGNATURE_FINALIZED")

	valid := env.do(t, http.MethodGet, "/v1/signatures/"+result.SignatureID+"/valid", nil, nil)
	var validResp struct {
		IsValid bool `json:"is_valid"`
	}
	decode(t, valid, &validResp)
	if validResp.IsValid {
		t.Fatal("expected rejected signature to be invalid")
	}
}

func TestCryptographicSignatureDetectsTampering(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.enroll(t, "alice", 0)
	content := []byte("the agreed terms")

	w := env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/signatures/cryptographic", signWithKeyRequest{
		signRequest: signRequest{
			documentInput: documentInput{DocumentType: "contract", DocumentID: "doc-2"},
			SignerID:      "alice",
		},
		ContentBase64: encoded(content),
		PrivateKeyPEM: testutil.PKCS1PrivateKeyPEM(testutil.RSAKey(t, 0)),
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var result domain.SignatureResult
	decode(t, w, &result)
	if result.Algorithm != domain.AlgorithmRSASHA512 {
		t.Fatalf("unexpected algorithm %s", result.Algorithm)
	}

	intact := env.do(t, http.MethodPost, "/v1/signatures/"+result.SignatureID+"/verify", verifyRequest{
		ContentBase64: encoded(content),
	}, nil)
	var ok domain.VerificationResult
	decode(t, intact, &ok)
	if !ok.IsValid || ok.HashMatches == nil || !*ok.HashMatches {
		t.Fatalf("expected valid signature, got %+v", ok)
	}

	tampered := env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/documents/doc-2/integrity", verifyRequest{
		ContentBase64: encoded([]byte("the altered terms")),
	}, nil)
	var integrity domain.DocumentIntegrityResult
	decode(t, tampered, &integrity)
	if integrity.IsIntact || integrity.InvalidSignatures != 1 {
		t.Fatalf("expected tampering to be detected, got %+v", integrity)
	}

	wrongKey := env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/signatures/cryptographic", signWithKeyRequest{
		signRequest: signRequest{
			documentInput: documentInput{DocumentType: "contract", DocumentID: "doc-3"},
			SignerID:      "alice",
		},
		ContentBase64: encoded(content),
		PrivateKeyPEM: testutil.PKCS1PrivateKeyPEM(testutil.RSAKey(t, 1)),
	}, nil)
	assertErrorCode(t, wrongKey, http.StatusBadRequest, "INVALID_PRIVATE_KEY")
}

func TestBulkVerifyIsolatesMissing(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.enroll(t, "alice", 0)
	sig := env.attest(t, "doc-1", "alice")

	w := env.do(t, http.MethodPost, "/v1/signatures/verify-bulk", bulkVerifyRequest{
		SignatureIDs: []string{sig.SignatureID, "missing"},
	}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Results []domain.VerificationResult `json:"results"`
	}
	decode(t, w, &resp)
	if len(resp.Results) != 2 || !resp.Results[0].IsValid || resp.Results[1].IsValid {
		t.Fatalf("unexpected bulk results: %+v", resp.Results)
	}
	if resp.Results[1].Errors[0].Code != domain.VerifySignatureNotFound {
		t.Fatalf("expected not found item, got %+v", resp.Results[1].Errors)
	}
}

func TestWorkflowLifecycle(t *testing.T) {
	env := newTestEnv(t, config.Config{AdminAPIKey: "admin-secret"}, nil)
	env.enroll(t, "alice", 0)
	env.enroll(t, "bob", 1)

	due := time.Now().UTC().Add(24 * time.Hour)
	w := env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/workflows", createWorkflowRequest{
		documentInput: documentInput{DocumentType: "contract", DocumentID: "doc-9"},
		RequesterID:   "requester",
		Signers: []domain.SignerRequirement{
			{SignerID: "bob", Name: "Bob", Order: 2, Required: true},
			{SignerID: "alice", Name: "Alice", Order: 1, Required: true},
		},
		DueDate: &due,
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var wf domain.SignatureWorkflow
	decode(t, w, &wf)
	if wf.Status != domain.WorkflowStatusPending || wf.TotalSigners != 2 || wf.Signers[0].SignerID != "alice" {
		t.Fatalf("unexpected workflow: %+v", wf)
	}

	signatureIDs := map[string]string{}
	for _, signer := range []string{"alice", "bob"} {
		sig := env.attest(t, "doc-9", signer)
		signatureIDs[signer] = sig.SignatureID
		step := env.do(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/steps", completeStepRequest{SignerID: signer, SignatureID: sig.SignatureID}, nil)
		if step.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", step.Code, step.Body.String())
		}
	}

	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/steps", completeStepRequest{SignerID: "alice", SignatureID: signatureIDs["alice"]}, nil),
		http.StatusConflict, "WORKFLOW_CLOSED")

	got := env.do(t, http.MethodGet, "/v1/workflows/"+wf.ID, nil, nil)
	decode(t, got, &wf)
	if wf.Status != domain.WorkflowStatusCompleted || wf.CompletedSignatures != wf.TotalSigners {
		t.Fatalf("expected completed workflow, got %+v", wf)
	}

	list := env.do(t, http.MethodGet, "/v1/tenants/"+testTenant+"/signers/bob/workflows?status=completed", nil, nil)
	var listed struct {
		Workflows []domain.SignatureWorkflow `json:"workflows"`
	}
	decode(t, list, &listed)
	if len(listed.Workflows) != 1 {
		t.Fatalf("expected one workflow, got %d", len(listed.Workflows))
	}

	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/workflows/"+wf.ID+"/cancel", cancelWorkflowRequest{Reason: "late"}, nil),
		http.StatusConflict, "WORKFLOW_CLOSED")

	sweep := env.do(t, http.MethodPost, "/v1/admin/workflows/expire", nil, map[string]string{"X-Admin-Key": "admin-secret"})
	var swept struct {
		Expired int `json:"expired"`
	}
	decode(t, sweep, &swept)
	if swept.Expired != 0 {
		t.Fatalf("expected nothing to expire, got %d", swept.Expired)
	}
}

func TestJWTModeEnforcesTenantAndScope(t *testing.T) {
	cfg := config.Config{AuthMode: "jwt", JWTSecret: "test-secret"}
	env := newTestEnv(t, cfg, nil)
	issuer, err := jwt.NewAuthenticator(cfg)
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	token := func(tenantID string, scopes ...string) map[string]string {
		raw, err := issuer.Issue(domain.Principal{Subject: "alice", Name: "Alice", TenantID: tenantID, Scopes: scopes}, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		return map[string]string{"Authorization": "Bearer " + raw}
	}
	body := storeCertificateRequest{CertificatePEM: certificatePEM(t, "alice", 0)}
	path := "/v1/tenants/" + testTenant + "/certificates"

	assertErrorCode(t, env.do(t, http.MethodPost, path, body, nil), http.StatusUnauthorized, "UNAUTHORIZED")
	assertErrorCode(t, env.do(t, http.MethodPost, path, body, map[string]string{"Authorization": "Bearer junk"}), http.StatusUnauthorized, "UNAUTHORIZED")
	assertErrorCode(t, env.do(t, http.MethodPost, path, body, token("tenant-2", "certificates:write")), http.StatusForbidden, "TENANT_MISMATCH")
	assertErrorCode(t, env.do(t, http.MethodPost, path, body, token(testTenant, "signatures:write")), http.StatusForbidden, "MISSING_SCOPE")

	w := env.do(t, http.MethodPost, path, body, token(testTenant, "certificates:*"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var cert certificateResponse
	decode(t, w, &cert)
	if cert.SignerID != "alice" {
		t.Fatalf("expected signer from token subject, got %q", cert.SignerID)
	}

	assertErrorCode(t, env.do(t, http.MethodGet, "/v1/certificates/"+cert.ID, nil, token("tenant-2", "certificates:read")),
		http.StatusForbidden, "TENANT_MISMATCH")
	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/admin/workflows/expire", nil, token(testTenant, "workflows:*")),
		http.StatusForbidden, "MISSING_ROLE")
}

func newJWTEnv(t *testing.T) (*testEnv, func(domain.Principal) map[string]string) {
	t.Helper()
	cfg := config.Config{AuthMode: "jwt", JWTSecret: "test-secret"}
	env := newTestEnv(t, cfg, nil)
	issuer, err := jwt.NewAuthenticator(cfg)
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	return env, func(p domain.Principal) map[string]string {
		raw, err := issuer.Issue(p, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		return map[string]string{"Authorization": "Bearer " + raw}
	}
}

func TestJWTModeRejectsActingAsAnotherSigner(t *testing.T) {
	env, token := newJWTEnv(t)
	alice := token(domain.Principal{Subject: "alice", TenantID: testTenant, Scopes: []string{"certificates:*", "signatures:*", "workflows:*"}})
	admin := token(domain.Principal{Subject: "ops", Roles: []string{rbac.RoleAdmin}})
	certs := "/v1/tenants/" + testTenant + "/certificates"

	assertErrorCode(t, env.do(t, http.MethodPost, certs, storeCertificateRequest{SignerID: "bob", CertificatePEM: certificatePEM(t, "bob", 1)}, alice),
		http.StatusForbidden, "SIGNER_MISMATCH")
	if w := env.do(t, http.MethodPost, certs, storeCertificateRequest{SignerID: "alice", CertificatePEM: certificatePEM(t, "alice", 0)}, alice); w.Code != http.StatusCreated {
		t.Fatalf("expected own certificate upload, got %d: %s", w.Code, w.Body.String())
	}
	w := env.do(t, http.MethodPost, certs, storeCertificateRequest{SignerID: "bob", CertificatePEM: certificatePEM(t, "bob", 1)}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected admin upload on behalf of bob, got %d: %s", w.Code, w.Body.String())
	}
	var bobCert certificateResponse
	decode(t, w, &bobCert)
	if bobCert.SignerID != "bob" {
		t.Fatalf("expected certificate for bob, got %q", bobCert.SignerID)
	}

	doc := documentInput{DocumentType: "contract", DocumentID: "doc-7"}
	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/signatures/attestation", signRequest{documentInput: doc, SignerID: "bob"}, alice),
		http.StatusForbidden, "SIGNER_MISMATCH")
	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/signatures/cryptographic", signWithKeyRequest{
		signRequest:   signRequest{documentInput: doc, SignerID: "bob"},
		ContentBase64: encoded([]byte("terms")),
		PrivateKeyPEM: testutil.PKCS1PrivateKeyPEM(testutil.RSAKey(t, 1)),
	}, alice), http.StatusForbidden, "SIGNER_MISMATCH")
	if sigs, _ := env.store.Signatures().ListByDocument(context.Background(), "doc-7", testTenant, ""); len(sigs) != 0 {
		t.Fatalf("expected no signatures recorded for bob, got %d", len(sigs))
	}

	w = env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/signatures/attestation", signRequest{documentInput: doc}, alice)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected attestation as alice, got %d: %s", w.Code, w.Body.String())
	}
	var signed domain.SignatureResult
	decode(t, w, &signed)

	w = env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/workflows", createWorkflowRequest{
		documentInput: doc,
		Signers: []domain.SignerRequirement{
			{SignerID: "alice", Name: "Alice", Order: 1, Required: true},
			{SignerID: "bob", Name: "Bob", Order: 2, Required: true},
		},
	}, alice)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected workflow, got %d: %s", w.Code, w.Body.String())
	}
	var wf domain.SignatureWorkflow
	decode(t, w, &wf)

	steps := "/v1/workflows/" + wf.ID + "/steps"
	assertErrorCode(t, env.do(t, http.MethodPost, steps, completeStepRequest{SignerID: "bob", SignatureID: signed.SignatureID}, alice),
		http.StatusForbidden, "SIGNER_MISMATCH")
	if w := env.do(t, http.MethodPost, steps, completeStepRequest{SignatureID: signed.SignatureID}, alice); w.Code != http.StatusOK {
		t.Fatalf("expected alice to complete her own step, got %d: %s", w.Code, w.Body.String())
	}
}

func TestJWTModeVerificationChecksSignatureTenant(t *testing.T) {
	env, token := newJWTEnv(t)
	alice := token(domain.Principal{Subject: "alice", TenantID: testTenant, Scopes: []string{"certificates:*", "signatures:*"}})
	outsider := token(domain.Principal{Subject: "mallory", TenantID: "tenant-2", Scopes: []string{rbac.PermVerify}})
	verifier := token(domain.Principal{Subject: "auditor", TenantID: testTenant, Roles: []string{rbac.RoleVerifier}})

	if w := env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/certificates", storeCertificateRequest{CertificatePEM: certificatePEM(t, "alice", 0)}, alice); w.Code != http.StatusCreated {
		t.Fatalf("expected certificate, got %d: %s", w.Code, w.Body.String())
	}
	w := env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/signatures/attestation", signRequest{
		documentInput: documentInput{DocumentType: "contract", DocumentID: "doc-1"},
	}, alice)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected attestation, got %d: %s", w.Code, w.Body.String())
	}
	var signed domain.SignatureResult
	decode(t, w, &signed)

	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/signatures/"+signed.SignatureID+"/verify", nil, outsider),
		http.StatusForbidden, "TENANT_MISMATCH")
	assertErrorCode(t, env.do(t, http.MethodGet, "/v1/signatures/"+signed.SignatureID+"/valid", nil, outsider),
		http.StatusForbidden, "TENANT_MISMATCH")

	bulk := env.do(t, http.MethodPost, "/v1/signatures/verify-bulk", bulkVerifyRequest{SignatureIDs: []string{signed.SignatureID}}, outsider)
	if bulk.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", bulk.Code, bulk.Body.String())
	}
	var resp struct {
		Results []domain.VerificationResult `json:"results"`
	}
	decode(t, bulk, &resp)
	if len(resp.Results) != 1 || resp.Results[0].IsValid || resp.Results[0].SignerID != "" {
		t.Fatalf("expected an opaque failed entry, got %+v", resp.Results)
	}
	if resp.Results[0].Errors[0].Code != domain.VerifyForbidden {
		t.Fatalf("expected FORBIDDEN entry, got %+v", resp.Results[0].Errors)
	}

	stored, err := env.store.Signatures().GetByID(context.Background(), signed.SignatureID)
	if err != nil {
		t.Fatalf("get signature: %v", err)
	}
	if stored.Verified {
		t.Fatal("cross-tenant verification must not mark the signature verified")
	}

	w = env.do(t, http.MethodPost, "/v1/signatures/"+signed.SignatureID+"/verify", nil, verifier)
	if w.Code != http.StatusOK {
		t.Fatalf("expected same-tenant verification, got %d: %s", w.Code, w.Body.String())
	}
	var result domain.VerificationResult
	decode(t, w, &result)
	if !result.IsValid || result.SignerID != "alice" {
		t.Fatalf("unexpected verification result: %+v", result)
	}
}

func TestEmptyDocumentContent(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.enroll(t, "alice", 0)

	w := env.do(t, http.MethodPost, "/v1/documents/hash", hashDocumentRequest{ContentBase64: encoded([]byte{})}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var hashed hashResponse
	decode(t, w, &hashed)
	if hashed.DocumentHash != cryptoinfra.HashDocument([]byte{}) {
		t.Fatalf("unexpected empty document hash %q", hashed.DocumentHash)
	}
	assertErrorCode(t, env.do(t, http.MethodPost, "/v1/documents/hash", hashDocumentRequest{}, nil),
		http.StatusBadRequest, "INVALID_INPUT")

	w = env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/signatures/cryptographic", signWithKeyRequest{
		signRequest:   signRequest{documentInput: documentInput{DocumentType: "note", DocumentID: "empty"}, SignerID: "alice"},
		ContentBase64: field(""),
		PrivateKeyPEM: testutil.PKCS1PrivateKeyPEM(testutil.RSAKey(t, 0)),
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected empty document to be signed, got %d: %s", w.Code, w.Body.String())
	}
	var signed domain.SignatureResult
	decode(t, w, &signed)

	w = env.do(t, http.MethodPost, "/v1/signatures/"+signed.SignatureID+"/verify", verifyRequest{ContentBase64: field("")}, nil)
	var result domain.VerificationResult
	decode(t, w, &result)
	if !result.IsValid || result.HashMatches == nil || !*result.HashMatches {
		t.Fatalf("expected empty content to verify, got %+v", result)
	}
}

func TestJWTModeRequiresSecret(t *testing.T) {
	env := newTestEnv(t, config.Config{AuthMode: "jwt"}, nil)
	if env.server.Err() == nil {
		t.Fatal("expected missing secret error")
	}
	assertErrorCode(t, env.do(t, http.MethodGet, "/v1/certificates/x", nil, nil), http.StatusInternalServerError, "AUTH_CONFIG_ERROR")
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	return domain.RateLimitDecision{}, context.DeadlineExceeded
}

func TestRateLimitOnSigning(t *testing.T) {
	env := newTestEnv(t, config.Config{RateLimitRequests: 1, RateLimitWindowSeconds: 60}, func(d *ServerDeps) {
		d.RateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{})
	})
	env.enroll(t, "alice", 0)
	env.attest(t, "doc-1", "alice")

	w := env.do(t, http.MethodPost, "/v1/tenants/"+testTenant+"/signatures/attestation", signRequest{
		documentInput: documentInput{DocumentType: "contract", DocumentID: "doc-2"},
		SignerID:      "alice",
	}, nil)
	assertErrorCode(t, w, http.StatusTooManyRequests, "RATE_LIMITED")
	if w.Header().Get("Retry-After") == "" || w.Header().Get("RateLimit-Limit") != "1" {
		t.Fatalf("expected rate limit headers, got %v", w.Header())
	}
}

func TestRateLimitFailClosed(t *testing.T) {
	env := newTestEnv(t, config.Config{RateLimitRequests: 5, RateLimitFailClosed: true}, func(d *ServerDeps) {
		d.RateLimiter = failingLimiter{}
	})
	w := env.do(t, http.MethodPost, "/v1/signatures/verify-bulk", bulkVerifyRequest{}, nil)
	assertErrorCode(t, w, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, config.Config{}, nil)
	env.do(t, http.MethodGet, "/healthz", nil, nil)
	w := env.do(t, http.MethodGet, "/metrics", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "docsign_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
}
