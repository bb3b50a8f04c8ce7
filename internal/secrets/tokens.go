// Package secrets keeps per-source bearer tokens in the OS keychain.
package secrets

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zalando/go-keyring"
)

const (
	// KeyringService groups the engine's secrets in the OS keychain.
	KeyringService = "jobsync"
)

// ErrNoToken is returned when no token is stored for an account.
var ErrNoToken = errors.New("secrets: token not found")

// Keyring resolves source tokens from the OS keychain.
type Keyring struct{}

// Token returns the token stored for account.
func (Keyring) Token(account string) (string, error) {
	return Token(account)
}

// Token looks up the bearer token for a source's tokenAccount.
func Token(account string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", errors.New("keyring account name is empty")
	}
	tok, err := keyring.Get(KeyringService, accountKey(account))
	if errors.Is(err, keyring.ErrNotFound) || (err == nil && strings.TrimSpace(tok) == "") {
		return "", errors.Wrapf(ErrNoToken, "account %q", account)
	}
	if err != nil {
		return "", errors.Wrapf(err, "keyring get %q", account)
	}
	return tok, nil
}

func SetToken(account, token string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(token) == "" {
		return errors.New("token is empty")
	}
	return errors.Wrapf(keyring.Set(KeyringService, accountKey(account), strings.TrimSpace(token)), "keyring set %q", account)
}

func DeleteToken(account string) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return errors.New("keyring account name is empty")
	}
	err := keyring.Delete(KeyringService, accountKey(account))
	if errors.Is(err, keyring.ErrNotFound) {
		return errors.Wrapf(ErrNoToken, "account %q", account)
	}
	return errors.Wrapf(err, "keyring delete %q", account)
}

func accountKey(account string) string {
	return fmt.Sprintf("jobsync:source:%s", account)
}
