package sshserver

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// AuthorizedKeys is the set of public keys allowed to open a console.
type AuthorizedKeys struct {
	mu   sync.RWMutex
	path string
	keys map[string]string
}

// LoadAuthorizedKeys parses an OpenSSH authorized_keys file.
func LoadAuthorizedKeys(path string) (*AuthorizedKeys, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ssh authorized keys path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}
	keys, err := parseAuthorizedKeys(data)
	if err != nil {
		return nil, fmt.Errorf("parse authorized keys %s: %w", path, err)
	}
	return &AuthorizedKeys{path: path, keys: keys}, nil
}

// Reload re-reads the file the set was loaded from.
func (a *AuthorizedKeys) Reload() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("read authorized keys: %w", err)
	}
	keys, err := parseAuthorizedKeys(data)
	if err != nil {
		return fmt.Errorf("parse authorized keys %s: %w", a.path, err)
	}
	a.mu.Lock()
	a.keys = keys
	a.mu.Unlock()
	return nil
}

// Lookup reports whether key is authorized and returns its comment.
func (a *AuthorizedKeys) Lookup(key ssh.PublicKey) (string, bool) {
	if a == nil || key == nil {
		return "", false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	comment, ok := a.keys[string(key.Marshal())]
	return comment, ok
}

// Len returns the number of authorized keys.
func (a *AuthorizedKeys) Len() int {
	if a == nil {
		return 0
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.keys)
}

func parseAuthorizedKeys(data []byte) (map[string]string, error) {
	keys := make(map[string]string)
	rest := data
	for len(bytes.TrimSpace(rest)) > 0 {
		key, comment, _, next, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			return nil, err
		}
		keys[string(key.Marshal())] = comment
		rest = next
	}
	return keys, nil
}
