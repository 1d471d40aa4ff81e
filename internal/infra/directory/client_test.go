package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"docsign/internal/domain"
	"docsign/internal/usecase"
)

var (
	_ usecase.IdentityLookup = (*Client)(nil)
	_ usecase.Notifier       = (*Client)(nil)
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func response(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestClient_LookupEmail(t *testing.T) {
	const token = "dir-token"
	client := New("https://identity.example/", "", token)
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				t.Fatalf("unexpected auth header: %s", r.Header.Get("Authorization"))
			}
			if r.Method != http.MethodGet || r.URL.Path != "/v1/tenants/tenant-1/users/alice" {
				t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
			body, _ := json.Marshal(map[string]string{"email": " alice@example.test "})
			return response(http.StatusOK, body), nil
		}),
	}

	email, err := client.LookupEmail(context.Background(), "alice", "tenant-1")
	if err != nil {
		t.Fatalf("lookup email: %v", err)
	}
	if email != "alice@example.test" {
		t.Fatalf("unexpected email: %q", email)
	}
}

func TestClient_LookupEmailNotFound(t *testing.T) {
	client := New("https://identity.example", "", "")
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return response(http.StatusNotFound, nil), nil
		}),
	}
	if _, err := client.LookupEmail(context.Background(), "ghost", "tenant-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	client := New("", "", "")
	if _, err := client.LookupEmail(context.Background(), "alice", "tenant-1"); !errors.Is(err, errNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	if err := client.WorkflowCompleted(context.Background(), domain.SignatureWorkflow{}); !errors.Is(err, errNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}

func TestClient_Notifications(t *testing.T) {
	var received []notification
	client := New("", "https://notify.example", "")
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			if r.Method != http.MethodPost || r.URL.Path != "/v1/notifications" {
				t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
			}
			if r.Header.Get("Content-Type") != "application/json" {
				t.Fatalf("unexpected content type: %s", r.Header.Get("Content-Type"))
			}
			var n notification
			if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
				t.Fatalf("decode notification: %v", err)
			}
			received = append(received, n)
			return response(http.StatusAccepted, nil), nil
		}),
	}

	wf := domain.SignatureWorkflow{
		ID:          "wf-1",
		Document:    domain.DocumentRef{Type: "contract", ID: "doc-1", TenantID: "tenant-1"},
		RequesterID: "requester",
		Signers:     []domain.Signer{{SignerID: "alice"}, {SignerID: "bob"}},
	}
	if err := client.WorkflowCompleted(context.Background(), wf); err != nil {
		t.Fatalf("workflow completed: %v", err)
	}
	cert := domain.StoredCertificate{
		ID:       "cert-1",
		SignerID: "alice",
		TenantID: "tenant-1",
		Info: domain.CertificateInfo{
			Fingerprint: "AA:BB",
			Subject:     domain.DistinguishedName{CommonName: "Alice"},
			NotAfter:    time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	if err := client.CertificateExpiring(context.Background(), cert, 7); err != nil {
		t.Fatalf("certificate expiring: %v", err)
	}

	if len(received) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(received))
	}
	if received[0].Type != "workflow_completed" || len(received[0].Recipients) != 3 {
		t.Fatalf("unexpected completion notice: %+v", received[0])
	}
	if received[1].Type != "certificate_expiring" || received[1].DaysLeft != 7 || received[1].Certificate.ID != "cert-1" {
		t.Fatalf("unexpected expiry notice: %+v", received[1])
	}
}

func TestClient_NotifyFailureStatus(t *testing.T) {
	client := New("", "https://notify.example", "")
	client.httpClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return response(http.StatusBadGateway, nil), nil
		}),
	}
	if err := client.CertificateExpiring(context.Background(), domain.StoredCertificate{SignerID: "alice"}, 1); err == nil {
		t.Fatal("expected error on 502")
	}
}
