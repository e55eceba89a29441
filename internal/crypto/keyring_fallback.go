//go:build !darwin

package crypto

import (
	"errors"
	"fmt"
)

type envKeyring struct{}

func newPlatformKeyring() Keyring {
	return &envKeyring{}
}

func (k *envKeyring) GetKey() (string, error) {
	if key, ok := keyFromEnv(); ok {
		return key, nil
	}
	return "", fmt.Errorf("%s environment variable not set: %w", KeyEnv, ErrKeyNotFound)
}

// SetKey cannot persist anything; the user has to export the variable.
func (k *envKeyring) SetKey(password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}
	return fmt.Errorf("keyring not available on this platform: export %s with the password you just entered", KeyEnv)
}

func (k *envKeyring) DeleteKey() error {
	return fmt.Errorf("keyring not available on this platform: unset %s manually", KeyEnv)
}

func (k *envKeyring) IsAvailable() bool {
	_, ok := keyFromEnv()
	return ok
}
