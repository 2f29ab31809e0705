package certs

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/acme"

	"github.com/kamrulh4/auraops/internal/core/domain"
	corenginx "github.com/kamrulh4/auraops/internal/core/nginx"
	"github.com/kamrulh4/auraops/internal/shell/store"
)

// =============================================================================
// Certificate Manager
// =============================================================================

var (
	// ErrIssuanceFailed wraps order and finalization failures.
	ErrIssuanceFailed = errors.New("certificate issuance failed")
)

// retryBackoff is how long a failed hostname waits before the next attempt.
const retryBackoff = time.Hour

// Config configures the certificate manager.
type Config struct {
	// DirectoryURL is the ACME directory, Let's Encrypt production when empty.
	DirectoryURL string
	// Email is the account contact, optional.
	Email string
	// WebrootDir serves HTTP-01 challenge files via the proxy.
	WebrootDir string
	// CertDir holds issued certificates, keys, and the account key.
	CertDir string
}

// Manager drives the ACME issuance and renewal flows and records every state
// change on the Domain entity.
type Manager struct {
	client     *acme.Client
	store      store.Store
	logger     *slog.Logger
	email      string
	webrootDir string
	certDir    string

	registerMu sync.Mutex
	registered bool
}

// NewManager creates a certificate manager, loading or creating the ACME
// account key under cfg.CertDir.
func NewManager(cfg Config, st store.Store, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	key, err := loadOrCreateAccountKey(cfg.CertDir)
	if err != nil {
		return nil, err
	}

	directoryURL := cfg.DirectoryURL
	if directoryURL == "" {
		directoryURL = acme.LetsEncryptURL
	}

	return &Manager{
		client: &acme.Client{
			Key:          key,
			DirectoryURL: directoryURL,
		},
		store:      st,
		logger:     logger.With("component", "cert_manager"),
		email:      cfg.Email,
		webrootDir: cfg.WebrootDir,
		certDir:    cfg.CertDir,
	}, nil
}

// Issue obtains a certificate for a domain in the none or failed state.
// Wildcards are rejected up front since HTTP-01 cannot validate them.
func (m *Manager) Issue(ctx context.Context, d *domain.Domain) error {
	if err := d.CanIssue(); err != nil {
		return err
	}

	if err := d.SetCertState(domain.CertPending); err != nil {
		return err
	}
	if err := m.store.UpdateDomain(ctx, d); err != nil {
		return err
	}

	return m.order(ctx, d)
}

// Renew re-issues a certificate for a domain in the issued state. A domain
// whose last order failed goes back through Issue once its backoff elapsed.
func (m *Manager) Renew(ctx context.Context, d *domain.Domain) error {
	if d.CertState == domain.CertFailed {
		return m.Issue(ctx, d)
	}
	if err := d.SetCertState(domain.CertRenewing); err != nil {
		return err
	}
	if err := m.store.UpdateDomain(ctx, d); err != nil {
		return err
	}

	return m.order(ctx, d)
}

// order runs the ACME order flow: authorize, answer the HTTP-01 challenge
// from the webroot, finalize, and install the certificate. Failures move the
// domain to failed with a retry backoff; the previous certificate files stay
// in place so a failed renewal does not break serving.
func (m *Manager) order(ctx context.Context, d *domain.Domain) error {
	logger := m.logger.With("hostname", d.Hostname)

	certDER, certKey, err := m.obtain(ctx, d)
	if err != nil {
		logger.Error("certificate order failed", "error", err)
		if failErr := d.FailCert(err.Error(), retryBackoff); failErr != nil {
			return failErr
		}
		if updateErr := m.store.UpdateDomain(ctx, d); updateErr != nil {
			return updateErr
		}
		return fmt.Errorf("%w: %s", ErrIssuanceFailed, err.Error())
	}

	expiry, err := m.install(d.Hostname, certDER, certKey)
	if err != nil {
		logger.Error("certificate install failed", "error", err)
		if failErr := d.FailCert(err.Error(), retryBackoff); failErr != nil {
			return failErr
		}
		if updateErr := m.store.UpdateDomain(ctx, d); updateErr != nil {
			return updateErr
		}
		return fmt.Errorf("%w: %s", ErrIssuanceFailed, err.Error())
	}

	// The issue path may still sit in pending when every authorization was
	// already valid and no challenge round trip happened.
	if d.CertState == domain.CertPending {
		if err := d.SetCertState(domain.CertChallenge); err != nil {
			return err
		}
	}
	if err := d.SetCertState(domain.CertIssued); err != nil {
		return err
	}
	d.CertExpiresAt = &expiry

	if err := m.store.UpdateDomain(ctx, d); err != nil {
		return err
	}

	logger.Info("certificate installed", "expires_at", expiry.Format(time.RFC3339))
	return nil
}

// obtain runs the network portion of the order and returns the certificate
// chain and its private key.
func (m *Manager) obtain(ctx context.Context, d *domain.Domain) ([][]byte, *ecdsa.PrivateKey, error) {
	if err := m.ensureRegistered(ctx); err != nil {
		return nil, nil, err
	}

	order, err := m.client.AuthorizeOrder(ctx, acme.DomainIDs(d.Hostname))
	if err != nil {
		return nil, nil, err
	}

	for _, authzURL := range order.AuthzURLs {
		if err := m.completeAuthorization(ctx, d, authzURL); err != nil {
			return nil, nil, err
		}
	}

	order, err = m.client.WaitOrder(ctx, order.URI)
	if err != nil {
		return nil, nil, err
	}

	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: d.Hostname},
		DNSNames: []string{d.Hostname},
	}, certKey)
	if err != nil {
		return nil, nil, err
	}

	certDER, _, err := m.client.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return nil, nil, err
	}

	return certDER, certKey, nil
}

// completeAuthorization answers one HTTP-01 challenge from the webroot.
func (m *Manager) completeAuthorization(ctx context.Context, d *domain.Domain, authzURL string) error {
	authz, err := m.client.GetAuthorization(ctx, authzURL)
	if err != nil {
		return err
	}
	if authz.Status == acme.StatusValid {
		return nil
	}

	var challenge *acme.Challenge
	for _, c := range authz.Challenges {
		if c.Type == "http-01" {
			challenge = c
			break
		}
	}
	if challenge == nil {
		return errors.New("no http-01 challenge offered")
	}

	response, err := m.client.HTTP01ChallengeResponse(challenge.Token)
	if err != nil {
		return err
	}

	challengePath, err := m.writeChallenge(challenge.Token, response)
	if err != nil {
		return err
	}
	defer os.Remove(challengePath)

	if d.CertState == domain.CertPending {
		if err := d.SetCertState(domain.CertChallenge); err != nil {
			return err
		}
		if err := m.store.UpdateDomain(ctx, d); err != nil {
			return err
		}
	}

	if _, err := m.client.Accept(ctx, challenge); err != nil {
		return err
	}
	if _, err := m.client.WaitAuthorization(ctx, authz.URI); err != nil {
		return err
	}
	return nil
}

// writeChallenge places the challenge response where the proxy serves
// /.well-known/acme-challenge/ from.
func (m *Manager) writeChallenge(token, response string) (string, error) {
	dir := filepath.Join(m.webrootDir, ".well-known", "acme-challenge")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, token)
	if err := os.WriteFile(path, []byte(response), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// install writes the certificate chain and key as PEM pairs the rendered
// proxy config points at, and returns the leaf expiry.
func (m *Manager) install(hostname string, certDER [][]byte, key *ecdsa.PrivateKey) (time.Time, error) {
	if len(certDER) == 0 {
		return time.Time{}, errors.New("empty certificate chain")
	}

	leaf, err := x509.ParseCertificate(certDER[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse leaf certificate: %w", err)
	}

	var chainPEM []byte
	for _, der := range certDER {
		chainPEM = append(chainPEM, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return time.Time{}, err
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	certPath := corenginx.CertPath(m.certDir, hostname)
	keyPath := corenginx.KeyPath(m.certDir, hostname)

	if err := os.WriteFile(certPath, chainPEM, 0644); err != nil {
		return time.Time{}, err
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return time.Time{}, err
	}

	return leaf.NotAfter, nil
}

// RemoveCertificate deletes the installed files for a hostname, used when a
// domain is detached.
func (m *Manager) RemoveCertificate(hostname string) {
	os.Remove(corenginx.CertPath(m.certDir, hostname))
	os.Remove(corenginx.KeyPath(m.certDir, hostname))
}
