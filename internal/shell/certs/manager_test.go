package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamrulh4/auraops/internal/core/domain"
	corenginx "github.com/kamrulh4/auraops/internal/core/nginx"
)

func TestAccountKeyPersistsAcrossLoads(t *testing.T) {
	dir := t.TempDir()

	first, err := loadOrCreateAccountKey(dir)
	require.NoError(t, err)

	second, err := loadOrCreateAccountKey(dir)
	require.NoError(t, err)

	assert.Equal(t, first.D, second.D)

	info, err := os.Stat(filepath.Join(dir, accountKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestWriteChallengeCreatesWebrootFile(t *testing.T) {
	webroot := t.TempDir()
	m := &Manager{webrootDir: webroot}

	path, err := m.writeChallenge("token123", "token123.thumbprint")
	require.NoError(t, err)

	expected := filepath.Join(webroot, ".well-known", "acme-challenge", "token123")
	assert.Equal(t, expected, path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "token123.thumbprint", string(content))
}

func TestInstallWritesPEMPairAndReturnsExpiry(t *testing.T) {
	certDir := t.TempDir()
	m := &Manager{certDir: certDir}

	notAfter := time.Now().UTC().Add(90 * 24 * time.Hour).Truncate(time.Second)
	der, key := selfSignedCert(t, "app.example.com", notAfter)

	expiry, err := m.install("app.example.com", [][]byte{der}, key)
	require.NoError(t, err)
	assert.WithinDuration(t, notAfter, expiry, time.Second)

	certPath := corenginx.CertPath(certDir, "app.example.com")
	keyPath := corenginx.KeyPath(certDir, "app.example.com")

	certPEM, err := os.ReadFile(certPath)
	require.NoError(t, err)
	assert.Contains(t, string(certPEM), "BEGIN CERTIFICATE")

	keyInfo, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), keyInfo.Mode().Perm())
}

func TestInstallRejectsEmptyChain(t *testing.T) {
	m := &Manager{certDir: t.TempDir()}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = m.install("app.example.com", nil, key)
	assert.Error(t, err)
}

func TestRemoveCertificate(t *testing.T) {
	certDir := t.TempDir()
	m := &Manager{certDir: certDir}

	notAfter := time.Now().UTC().Add(24 * time.Hour)
	der, key := selfSignedCert(t, "app.example.com", notAfter)
	_, err := m.install("app.example.com", [][]byte{der}, key)
	require.NoError(t, err)

	m.RemoveCertificate("app.example.com")

	_, err = os.Stat(corenginx.CertPath(certDir, "app.example.com"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(corenginx.KeyPath(certDir, "app.example.com"))
	assert.True(t, os.IsNotExist(err))
}

func TestIssueRejectsWildcard(t *testing.T) {
	m := &Manager{certDir: t.TempDir(), webrootDir: t.TempDir()}

	d, err := domain.NewDomain("p1", "*.example.com")
	require.NoError(t, err)

	err = m.Issue(t.Context(), d)
	assert.ErrorIs(t, err, domain.ErrWildcardHostname)
	assert.Equal(t, domain.CertNone, d.CertState)
}

func TestRenewFailedDomainGoesThroughIssue(t *testing.T) {
	m := &Manager{certDir: t.TempDir(), webrootDir: t.TempDir()}

	d, err := domain.NewDomain("p1", "app.example.com")
	require.NoError(t, err)
	require.NoError(t, d.SetCertState(domain.CertPending))
	require.NoError(t, d.FailCert("challenge unreachable", time.Hour))

	// Backoff not yet elapsed: the retry is refused by Issue's eligibility
	// check, not by a state-machine error.
	err = m.Renew(t.Context(), d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry scheduled")
	assert.Equal(t, domain.CertFailed, d.CertState)
}

// selfSignedCert builds a throwaway certificate for install tests.
func selfSignedCert(t *testing.T, hostname string, notAfter time.Time) ([]byte, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: hostname},
		DNSNames:     []string{hostname},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	return der, key
}
