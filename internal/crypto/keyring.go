package crypto

import (
	"errors"
	"os"
)

// Keyring provides secure key storage abstraction
type Keyring interface {
	GetKey() (string, error)
	SetKey(password string) error
	DeleteKey() error
	IsAvailable() bool
}

const (
	ServiceName = "timesheet"
	KeyName     = "db-encryption-key"

	// KeyEnv holds the database key for scripted runs, and on platforms
	// without a keychain.
	KeyEnv = "TIMESHEET_DB_KEY"
)

// ErrKeyNotFound means no key has been stored yet; callers may prompt for one.
var ErrKeyNotFound = errors.New("encryption key not found")

// NewKeyring returns the OS keychain on macOS and the TIMESHEET_DB_KEY
// environment variable elsewhere.
func NewKeyring() Keyring {
	return newPlatformKeyring()
}

func keyFromEnv() (string, bool) {
	key := os.Getenv(KeyEnv)
	return key, key != ""
}
