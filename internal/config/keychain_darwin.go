//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// keychainGet reads service/account from the login Keychain through the
// security CLI.
func keychainGet(service, account string) ([]byte, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w").Output()
	if err == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(string(exitErr.Stderr)); msg != "" {
			return nil, fmt.Errorf("secret %s/%s not found: %s", service, account, msg)
		}
		return nil, fmt.Errorf("secret %s/%s not found", service, account)
	}
	return nil, fmt.Errorf("secret store not available: %w", err)
}
