// Package directory talks to the identity and notification services over HTTP.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"docsign/internal/config"
	"docsign/internal/domain"
)

var errNotConfigured = errors.New("directory endpoint not configured")

type Client struct {
	identityURL string
	notifyURL   string
	token       string
	httpClient  *http.Client
}

func New(identityURL, notifyURL, token string) *Client {
	return &Client{
		identityURL: strings.TrimRight(identityURL, "/"),
		notifyURL:   strings.TrimRight(notifyURL, "/"),
		token:       token,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

func NewFromConfig(cfg config.Config) *Client {
	return New(cfg.IdentityBaseURL, cfg.NotifyBaseURL, cfg.DirectoryToken)
}

func (c *Client) IdentityConfigured() bool {
	return c != nil && c.identityURL != ""
}

func (c *Client) NotifyConfigured() bool {
	return c != nil && c.notifyURL != ""
}

// LookupEmail resolves a signer's contact address.
func (c *Client) LookupEmail(ctx context.Context, signerID, tenantID string) (string, error) {
	if signerID == "" {
		return "", errors.New("signer id is required")
	}
	if !c.IdentityConfigured() {
		return "", errNotConfigured
	}
	path := fmt.Sprintf("/v1/tenants/%s/users/%s", url.PathEscape(tenantID), url.PathEscape(signerID))
	body, err := c.do(ctx, http.MethodGet, c.identityURL+path, nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Email) == "" {
		return "", errors.New("identity response missing email")
	}
	return strings.TrimSpace(resp.Email), nil
}

type notification struct {
	Type         string          `json:"type"`
	TenantID     string          `json:"tenant_id"`
	Recipients   []string        `json:"recipients"`
	WorkflowID   string          `json:"workflow_id,omitempty"`
	DocumentType string          `json:"document_type,omitempty"`
	DocumentID   string          `json:"document_id,omitempty"`
	Certificate  *certificateRef `json:"certificate,omitempty"`
	DaysLeft     int             `json:"days_left,omitempty"`
}

type certificateRef struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Subject     string    `json:"subject"`
	NotAfter    time.Time `json:"not_after"`
}

// WorkflowCompleted tells the requester and every signer that all signatures are in.
func (c *Client) WorkflowCompleted(ctx context.Context, wf domain.SignatureWorkflow) error {
	recipients := make([]string, 0, len(wf.Signers)+1)
	if wf.RequesterID != "" {
		recipients = append(recipients, wf.RequesterID)
	}
	for _, signer := range wf.Signers {
		recipients = append(recipients, signer.SignerID)
	}
	return c.notify(ctx, notification{
		Type:         "workflow_completed",
		TenantID:     wf.Document.TenantID,
		Recipients:   recipients,
		WorkflowID:   wf.ID,
		DocumentType: wf.Document.Type,
		DocumentID:   wf.Document.ID,
	})
}

func (c *Client) CertificateExpiring(ctx context.Context, cert domain.StoredCertificate, daysLeft int) error {
	return c.notify(ctx, notification{
		Type:       "certificate_expiring",
		TenantID:   cert.TenantID,
		Recipients: []string{cert.SignerID},
		Certificate: &certificateRef{
			ID:          cert.ID,
			Fingerprint: cert.Info.Fingerprint,
			Subject:     cert.Info.Subject.CommonName,
			NotAfter:    cert.Info.NotAfter.UTC(),
		},
		DaysLeft: daysLeft,
	})
}

func (c *Client) notify(ctx context.Context, n notification) error {
	if !c.NotifyConfigured() {
		return errNotConfigured
	}
	_, err := c.do(ctx, http.MethodPost, c.notifyURL+"/v1/notifications", n)
	return err
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var reader io.Reader = bytes.NewReader(nil)
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("directory request failed: status %d", resp.StatusCode)
	}
	return respBody, nil
}
