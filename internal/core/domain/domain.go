package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Certificate State
// =============================================================================

// CertState tracks a hostname's certificate through issuance and renewal.
type CertState string

const (
	CertNone      CertState = "none"
	CertPending   CertState = "pending"
	CertChallenge CertState = "challenge"
	CertIssued    CertState = "issued"
	CertRenewing  CertState = "renewing"
	CertFailed    CertState = "failed"
)

var ErrInvalidCertTransition = errors.New("invalid certificate state transition")

// validCertTransitions defines the allowed certificate state edges.
// Failed is not terminal: a failed issuance may be retried after backoff.
var validCertTransitions = map[CertState][]CertState{
	CertNone:      {CertPending},
	CertPending:   {CertChallenge, CertFailed},
	CertChallenge: {CertIssued, CertFailed},
	CertIssued:    {CertRenewing},
	CertRenewing:  {CertIssued, CertFailed},
	CertFailed:    {CertPending},
}

// ValidateCertTransition checks whether a certificate state change is allowed.
func ValidateCertTransition(from, to CertState) error {
	allowed, exists := validCertTransitions[from]
	if !exists {
		return ErrInvalidCertTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidCertTransition
}

// =============================================================================
// Domain
// =============================================================================

// Domain maps a hostname to a project, with optional TLS.
type Domain struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	Hostname      string     `json:"hostname"`
	Wildcard      bool       `json:"wildcard"`
	SSLEnabled    bool       `json:"ssl_enabled"`
	CertState     CertState  `json:"cert_state"`
	CertExpiresAt *time.Time `json:"cert_expires_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
	RetryAfter    *time.Time `json:"retry_after,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

var hostnameRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)+$`)

// NewDomain creates a domain entry for a project. A leading "*." marks the
// hostname as a wildcard.
func NewDomain(projectID, hostname string) (*Domain, error) {
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	wildcard := strings.HasPrefix(hostname, "*.")
	check := strings.TrimPrefix(hostname, "*.")
	if !hostnameRe.MatchString(check) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHostname, hostname)
	}

	return &Domain{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		Hostname:  hostname,
		Wildcard:  wildcard,
		CertState: CertNone,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// SetCertState transitions the certificate state, validating the edge.
func (d *Domain) SetCertState(to CertState) error {
	if err := ValidateCertTransition(d.CertState, to); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, d.CertState, to)
	}
	d.CertState = to
	if to == CertIssued {
		d.SSLEnabled = true
		d.LastError = ""
		d.RetryAfter = nil
	}
	return nil
}

// FailCert records a failed issuance or renewal and schedules a retry.
func (d *Domain) FailCert(message string, retryIn time.Duration) error {
	if err := d.SetCertState(CertFailed); err != nil {
		return err
	}
	d.LastError = message
	at := time.Now().UTC().Add(retryIn)
	d.RetryAfter = &at
	return nil
}

// CanIssue reports whether the domain is eligible for HTTP-01 issuance.
// Wildcards need DNS-01 which is not supported.
func (d *Domain) CanIssue() error {
	if d.Wildcard {
		return ErrWildcardHostname
	}
	if d.RetryAfter != nil && time.Now().UTC().Before(*d.RetryAfter) {
		return fmt.Errorf("retry scheduled for %s", d.RetryAfter.Format(time.RFC3339))
	}
	return nil
}

// HasValidCert reports whether a usable certificate is installed on disk.
// A failed renewal only postpones: the previous certificate files stay in
// place and keep serving until they actually expire.
func (d *Domain) HasValidCert(now time.Time) bool {
	switch d.CertState {
	case CertIssued, CertRenewing:
		return true
	case CertFailed:
		return d.CertExpiresAt != nil && d.CertExpiresAt.After(now)
	}
	return false
}

// NeedsRenewal reports whether the cert expires within the renewal window.
func (d *Domain) NeedsRenewal(window time.Duration) bool {
	if d.CertState != CertIssued || d.CertExpiresAt == nil {
		return false
	}
	return time.Until(*d.CertExpiresAt) <= window
}

// Matches reports whether a request hostname is served by this domain.
// Wildcards match exactly one extra left-most label.
func (d *Domain) Matches(hostname string) bool {
	hostname = strings.ToLower(hostname)
	if !d.Wildcard {
		return hostname == d.Hostname
	}
	suffix := strings.TrimPrefix(d.Hostname, "*")
	if !strings.HasSuffix(hostname, suffix) {
		return false
	}
	label := strings.TrimSuffix(hostname, suffix)
	return label != "" && !strings.Contains(label, ".")
}
