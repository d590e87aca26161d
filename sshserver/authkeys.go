package sshserver

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// LoadAuthorizedKeys parses an OpenSSH authorized_keys file. Blank lines
// and comments are skipped; a line that does not parse is an error.
func LoadAuthorizedKeys(path string) ([]ssh.PublicKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("authorized keys path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read authorized keys: %w", err)
	}
	var keys []ssh.PublicKey
	rest := data
	line := 0
	for len(rest) > 0 {
		var current []byte
		if idx := bytes.IndexByte(rest, '\n'); idx >= 0 {
			current, rest = rest[:idx], rest[idx+1:]
		} else {
			current, rest = rest, nil
		}
		line++
		trimmed := bytes.TrimSpace(current)
		if len(trimmed) == 0 || trimmed[0] == '#' {
			continue
		}
		key, _, _, _, err := ssh.ParseAuthorizedKey(trimmed)
		if err != nil {
			return nil, fmt.Errorf("authorized keys %s:%d: %w", path, line, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func keyAllowed(allowed []ssh.PublicKey, key ssh.PublicKey) bool {
	if key == nil {
		return false
	}
	for _, candidate := range allowed {
		if bytes.Equal(candidate.Marshal(), key.Marshal()) {
			return true
		}
	}
	return false
}
