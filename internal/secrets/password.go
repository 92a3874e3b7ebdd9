// Package secrets resolves provider credentials from the OS keychain, falling
// back to environment variables.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	// “Service” groups the app's secrets in the OS keychain.
	KeyringService = "jobmatch"
)

// Secret names one credential: its keychain account and its env variable.
type Secret struct {
	Name    string
	Account string
	Env     string
}

var ErrNotFound = errors.New("secret not found")

// keyringGet is swapped in tests.
var keyringGet = keyring.Get

// Get tries the keychain first, then the environment.
func Get(s Secret) (string, error) {
	if strings.TrimSpace(s.Account) != "" {
		v, err := keyringGet(KeyringService, s.Account)
		if err == nil && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	if s.Env != "" {
		if v := strings.TrimSpace(os.Getenv(s.Env)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%s: %w (set it in the keychain or via %s)", s.Name, ErrNotFound, s.Env)
}

func Set(s Secret, value string) error {
	if strings.TrimSpace(s.Account) == "" {
		return errors.New("keyring account name is empty")
	}
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is empty", s.Name)
	}
	return keyring.Set(KeyringService, s.Account, value)
}

func Delete(s Secret) error {
	if strings.TrimSpace(s.Account) == "" {
		return errors.New("keyring account name is empty")
	}
	return keyring.Delete(KeyringService, s.Account)
}

func IMAPPassword(username, host string) Secret {
	return Secret{
		Name:    "IMAP password",
		Account: fmt.Sprintf("jobmatch:imap:%s@%s", username, host),
		Env:     "JOBMATCH_IMAP_PASSWORD",
	}
}

func AdzunaAppKey(appID string) Secret {
	return Secret{
		Name:    "Adzuna app key",
		Account: "jobmatch:adzuna:" + appID,
		Env:     "JOBMATCH_ADZUNA_APP_KEY",
	}
}

func HeadHunterToken() Secret {
	return Secret{
		Name:    "hh.ru token",
		Account: "jobmatch:headhunter",
		Env:     "JOBMATCH_HH_TOKEN",
	}
}

// ByName maps the names accepted by `engine secret set` to their secrets.
func ByName(name, imapUser, imapHost, adzunaAppID string) (Secret, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "imap":
		return IMAPPassword(imapUser, imapHost), true
	case "adzuna":
		return AdzunaAppKey(adzunaAppID), true
	case "headhunter", "hh":
		return HeadHunterToken(), true
	default:
		return Secret{}, false
	}
}
