//go:build darwin

package crypto

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// keychainKeyring keeps the key in the macOS Keychain. TIMESHEET_DB_KEY, when
// set, wins so cron jobs and scripts never hit a Keychain prompt.
type keychainKeyring struct {
	service string
	account string
}

func newPlatformKeyring() Keyring {
	return &keychainKeyring{service: ServiceName, account: KeyName}
}

func (k *keychainKeyring) GetKey() (string, error) {
	if key, ok := keyFromEnv(); ok {
		return key, nil
	}

	key, err := keyring.Get(k.service, k.account)
	switch {
	case errors.Is(err, keyring.ErrNotFound), err == nil && key == "":
		return "", fmt.Errorf("no %s entry in keychain: %w", k.service, ErrKeyNotFound)
	case err != nil:
		return "", fmt.Errorf("failed to read %s key from keychain: %w", k.service, err)
	}
	return key, nil
}

func (k *keychainKeyring) SetKey(password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}
	if err := keyring.Set(k.service, k.account, password); err != nil {
		return fmt.Errorf("failed to store %s key in keychain: %w", k.service, err)
	}
	return nil
}

// DeleteKey forgets the stored key. Forgetting a key that was never stored
// is not an error, so `reset all --forget-key` can be repeated.
func (k *keychainKeyring) DeleteKey() error {
	err := keyring.Delete(k.service, k.account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete %s key from keychain: %w", k.service, err)
	}
	return nil
}

// IsAvailable tests the Keychain with a throwaway entry next to the real one.
func (k *keychainKeyring) IsAvailable() bool {
	check := k.account + ".check"
	if err := keyring.Set(k.service, check, "ok"); err != nil {
		return false
	}
	_ = keyring.Delete(k.service, check)
	return true
}
