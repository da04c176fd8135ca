package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/mgrantham/shelfscout/internal/crypto"
)

// Credentials is the pre-issued credential file for the catalog API
type Credentials struct {
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id,omitempty"`
	CustomerID  string `json:"customer_id,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// LoadCredentials reads a plaintext credential file. The file must not be
// readable by group or others unless allowInsecure is set; tokens in a
// world-readable file are a credential leak waiting to happen.
func LoadCredentials(path string, allowInsecure bool) (*Credentials, error) {
	return LoadCredentialsWithPassword(path, allowInsecure, "")
}

// LoadCredentialsWithPassword additionally handles files encrypted at rest:
// when a password is given the file is opened as a sealed blob before
// parsing. An empty password means the file is plaintext JSON.
func LoadCredentialsWithPassword(path string, allowInsecure bool, password string) (*Credentials, error) {
	if path == "" {
		return nil, &APIError{Kind: KindAuthFile, Message: "auth file path is required"}
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &APIError{Kind: KindAuthFile, Message: fmt.Sprintf("auth file %s: %v", path, err)}
	}

	// Windows has no POSIX permission bits worth checking
	if runtime.GOOS != "windows" && !allowInsecure {
		if perm := info.Mode().Perm(); perm&0o077 != 0 {
			return nil, &APIError{
				Kind: KindAuthFile,
				Message: fmt.Sprintf(
					"auth file %s has permissions %04o, want 0600 (set allow_insecure_auth_file to override)",
					path, perm),
			}
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &APIError{Kind: KindAuthFile, Message: fmt.Sprintf("auth file %s: %v", path, err)}
	}

	if password != "" {
		opened, err := crypto.Open(data, password)
		if err != nil {
			return nil, &APIError{Kind: KindAuthFile, Message: fmt.Sprintf("auth file %s: %v", path, err)}
		}
		data = opened
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, &APIError{Kind: KindAuthFile, Message: fmt.Sprintf("auth file %s: invalid JSON: %v", path, err)}
	}
	if strings.TrimSpace(creds.AccessToken) == "" {
		return nil, &APIError{Kind: KindAuthFile, Message: fmt.Sprintf("auth file %s: missing access_token", path)}
	}
	return &creds, nil
}
