package sshserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

const hostKeyComment = "tabstack"

// EnsureHostKey returns the host key stored at path, generating an ed25519
// key on first use.
func EnsureHostKey(path string) (ssh.Signer, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ssh host key path is required")
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse host key %s: %w", path, err)
		}
		return signer, nil
	case errors.Is(err, fs.ErrNotExist):
		return generateHostKey(path)
	default:
		return nil, fmt.Errorf("read host key %s: %w", path, err)
	}
}

// generateHostKey writes the key to a temp file in the target directory and
// renames it into place, so a crash never leaves a truncated key behind.
func generateHostKey(path string) (ssh.Signer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create host key dir: %w", err)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate host key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, hostKeyComment)
	if err != nil {
		return nil, fmt.Errorf("marshal host key: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".hostkey-*")
	if err != nil {
		return nil, fmt.Errorf("create host key: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("chmod host key: %w", err)
	}
	if err := pem.Encode(tmp, block); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("encode host key: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close host key: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("install host key: %w", err)
	}
	return ssh.NewSignerFromKey(priv)
}
