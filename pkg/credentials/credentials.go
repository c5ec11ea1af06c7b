// Package credentials keeps secrets by service name in the system keyring.
// Where no system keyring is reachable, such as on a headless box, secrets go
// to an encrypted file keyring instead.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName scopes lamp's entries in the system keyring.
const ServiceName = "lamp"

// PasswordEnv names the variable holding the file keyring password. Without
// it the password is asked for on the terminal.
const PasswordEnv = "LAMP_KEYRING_PASSWORD"

// ErrNotFound is returned by Get for an unknown service.
var ErrNotFound = errors.New("credential not found")

// backends maps the configured backend names to keyring backends.
var backends = map[string]keyring.BackendType{
	"keychain":       keyring.KeychainBackend,
	"secret-service": keyring.SecretServiceBackend,
	"kwallet":        keyring.KWalletBackend,
	"wincred":        keyring.WinCredBackend,
	"pass":           keyring.PassBackend,
	"file":           keyring.FileBackend,
}

// autoBackends is the order tried when no backend is configured. The file
// keyring comes last.
var autoBackends = []keyring.BackendType{
	keyring.KeychainBackend,
	keyring.WinCredBackend,
	keyring.SecretServiceBackend,
	keyring.KWalletBackend,
	keyring.FileBackend,
}

// ValidBackend reports whether name is a backend Open accepts. The empty
// name picks the first reachable one.
func ValidBackend(name string) bool {
	_, ok := backends[name]
	return ok || name == ""
}

type Options struct {
	// Backend forces one keyring backend by name.
	Backend string
	// Dir holds the file keyring.
	Dir string
	// Password unlocks the file keyring, overriding PasswordEnv.
	Password string
}

// Store is a keyring-backed secret store.
type Store struct {
	ring keyring.Keyring
	mu   sync.Mutex
}

// Open opens the keyring described by opts.
func Open(opts Options) (*Store, error) {
	allowed := autoBackends
	if opts.Backend != "" {
		b, ok := backends[opts.Backend]
		if !ok {
			return nil, fmt.Errorf("unknown keyring backend %q", opts.Backend)
		}
		allowed = []keyring.BackendType{b}
	}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o700); err != nil {
			return nil, err
		}
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName:                    ServiceName,
		AllowedBackends:                allowed,
		KeychainTrustApplication:       true,
		KeychainSynchronizable:         false,
		KeychainAccessibleWhenUnlocked: true,
		LibSecretCollectionName:        ServiceName,
		KWalletAppID:                   ServiceName,
		KWalletFolder:                  ServiceName,
		WinCredPrefix:                  ServiceName,
		PassPrefix:                     ServiceName,
		FileDir:                        opts.Dir,
		FilePasswordFunc:               passwordFunc(opts.Password),
	})
	if err != nil {
		return nil, fmt.Errorf("could not open keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

func passwordFunc(password string) keyring.PromptFunc {
	return func(prompt string) (string, error) {
		if password != "" {
			return password, nil
		}
		if p := os.Getenv(PasswordEnv); p != "" {
			return p, nil
		}
		return keyring.TerminalPrompt(prompt)
	}
}

func (s *Store) Get(service string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, err := s.ring.Get(service)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%s: %w", service, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", service, err)
	}
	return string(item.Data), nil
}

func (s *Store) Put(service, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Set(keyring.Item{
		Key:   service,
		Data:  []byte(secret),
		Label: ServiceName + " " + service,
	})
}

// Delete forgets service. Unknown services are not an error.
func (s *Store) Delete(service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ring.Remove(service)
	if errors.Is(err, keyring.ErrKeyNotFound) || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Services lists the stored service names.
func (s *Store) Services() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.ring.Keys()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
