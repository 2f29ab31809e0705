// Package certs issues and renews TLS certificates over ACME HTTP-01,
// serving challenges from the proxy's webroot.
package certs

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/acme"
)

// =============================================================================
// ACME Account
// =============================================================================

const accountKeyFile = "account.key"

// loadOrCreateAccountKey reads the ACME account key from certDir or creates
// a fresh P-256 key on first run.
func loadOrCreateAccountKey(certDir string) (*ecdsa.PrivateKey, error) {
	if err := os.MkdirAll(certDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create cert directory: %w", err)
	}

	path := filepath.Join(certDir, accountKeyFile)

	data, err := os.ReadFile(path)
	if err == nil {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("invalid account key at %s", path)
		}
		key, parseErr := x509.ParseECPrivateKey(block.Bytes)
		if parseErr != nil {
			return nil, fmt.Errorf("failed to parse account key: %w", parseErr)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	encoded := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	if err := os.WriteFile(path, encoded, 0600); err != nil {
		return nil, fmt.Errorf("failed to persist account key: %w", err)
	}

	return key, nil
}

// ensureRegistered registers the account with the directory if it is not
// already registered. Existing accounts are detected and reused.
func (m *Manager) ensureRegistered(ctx context.Context) error {
	m.registerMu.Lock()
	defer m.registerMu.Unlock()

	if m.registered {
		return nil
	}

	_, err := m.client.Register(ctx, &acme.Account{Contact: m.contact()}, acme.AcceptTOS)
	if err != nil && err != acme.ErrAccountAlreadyExists {
		return fmt.Errorf("account registration failed: %w", err)
	}

	m.registered = true
	return nil
}

func (m *Manager) contact() []string {
	if m.email == "" {
		return nil
	}
	return []string{"mailto:" + m.email}
}
