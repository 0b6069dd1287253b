package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned when no secret is stored for a service/user pair.
var ErrNotFound = errors.New("secret not found in keyring")

// Backend names accepted by NewManager
const (
	BackendAuto   = "auto"
	BackendSystem = "system"
	BackendFile   = "file"
)

// systemProbeTimeout bounds the system keyring availability check; some
// desktop keyrings block waiting for an unlock prompt.
const systemProbeTimeout = 5 * time.Second

// FileKeyring implements a file-based keyring for headless machines
type FileKeyring struct {
	mu          sync.Mutex
	keyringPath string
	masterKey   []byte
}

// Entry represents a stored keyring entry
type Entry struct {
	Service string `json:"service"`
	User    string `json:"user"`
	Data    string `json:"data"` // encrypted data
}

// Manager provides a unified interface over the system keyring and the file fallback
type Manager struct {
	fileKeyring *FileKeyring
	useFile     bool
}

// NewManager creates a keyring manager for the given backend. With
// BackendAuto the system keyring is probed first and the file keyring is used
// when it is unavailable.
func NewManager(backend, keyringPath, masterPassword string) *Manager {
	switch backend {
	case BackendSystem:
		return &Manager{useFile: false}
	case BackendFile:
		return &Manager{fileKeyring: NewFileKeyring(keyringPath, masterPassword), useFile: true}
	}

	if systemKeyringAvailable() {
		return &Manager{useFile: false}
	}
	return &Manager{fileKeyring: NewFileKeyring(keyringPath, masterPassword), useFile: true}
}

func systemKeyringAvailable() bool {
	const testService, testKey = "redb-apphost-probe", "probe"

	done := make(chan error, 1)
	go func() {
		err := keyring.Set(testService, testKey, "probe")
		if err == nil {
			_ = keyring.Delete(testService, testKey)
		}
		done <- err
	}()

	select {
	case err := <-done:
		return err == nil
	case <-time.After(systemProbeTimeout):
		return false
	}
}

// UsesFile reports whether the manager stores secrets in the file keyring
func (m *Manager) UsesFile() bool {
	return m.useFile
}

// Set stores a value in the keyring (system or file)
func (m *Manager) Set(service, user, password string) error {
	if !m.useFile {
		return keyring.Set(service, user, password)
	}
	return m.fileKeyring.Set(service, user, password)
}

// Get retrieves a value from the keyring (system or file)
func (m *Manager) Get(service, user string) (string, error) {
	if !m.useFile {
		v, err := keyring.Get(service, user)
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return v, err
	}
	return m.fileKeyring.Get(service, user)
}

// Delete removes a value from the keyring (system or file)
func (m *Manager) Delete(service, user string) error {
	if !m.useFile {
		err := keyring.Delete(service, user)
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}
	return m.fileKeyring.Delete(service, user)
}

// NewFileKeyring creates a new file-based keyring
func NewFileKeyring(keyringPath, masterPassword string) *FileKeyring {
	hash := sha256.Sum256([]byte(masterPassword))

	return &FileKeyring{
		keyringPath: keyringPath,
		masterKey:   hash[:],
	}
}

// encrypt encrypts plaintext using AES-GCM
func (fk *FileKeyring) encrypt(plaintext string) (string, error) {
	gcm, err := fk.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts ciphertext using AES-GCM
func (fk *FileKeyring) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	gcm, err := fk.gcm()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt keyring entry: %w", err)
	}
	return string(plaintext), nil
}

func (fk *FileKeyring) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(fk.masterKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (fk *FileKeyring) load() (map[string]Entry, error) {
	entries := make(map[string]Entry)

	data, err := os.ReadFile(fk.keyringPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, nil
		}
		return nil, fmt.Errorf("failed to read keyring file: %w", err)
	}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse keyring file: %w", err)
	}
	return entries, nil
}

func (fk *FileKeyring) save(entries map[string]Entry) error {
	if err := os.MkdirAll(filepath.Dir(fk.keyringPath), 0o700); err != nil {
		return fmt.Errorf("failed to create keyring directory: %w", err)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return os.WriteFile(fk.keyringPath, data, 0o600)
}

func entryKey(service, user string) string {
	return fmt.Sprintf("%s:%s", service, user)
}

// Set stores an entry in the file keyring
func (fk *FileKeyring) Set(service, user, password string) error {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	entries, err := fk.load()
	if err != nil {
		return err
	}

	encrypted, err := fk.encrypt(password)
	if err != nil {
		return err
	}

	entries[entryKey(service, user)] = Entry{
		Service: service,
		User:    user,
		Data:    encrypted,
	}
	return fk.save(entries)
}

// Get retrieves an entry from the file keyring
func (fk *FileKeyring) Get(service, user string) (string, error) {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	entries, err := fk.load()
	if err != nil {
		return "", err
	}

	entry, exists := entries[entryKey(service, user)]
	if !exists {
		return "", ErrNotFound
	}
	return fk.decrypt(entry.Data)
}

// Delete removes an entry from the file keyring
func (fk *FileKeyring) Delete(service, user string) error {
	fk.mu.Lock()
	defer fk.mu.Unlock()

	entries, err := fk.load()
	if err != nil {
		return err
	}
	if _, ok := entries[entryKey(service, user)]; !ok {
		return nil
	}

	delete(entries, entryKey(service, user))
	return fk.save(entries)
}

// GetMasterPasswordFromEnv gets the file keyring master password from the environment
func GetMasterPasswordFromEnv() string {
	if password := os.Getenv("REDB_APPHOST_KEYRING_PASSWORD"); password != "" {
		return password
	}
	// Development default; the file keyring only protects local container passwords.
	return "redb-apphost-local"
}

// GetDefaultKeyringPath returns the default keyring file path
func GetDefaultKeyringPath() string {
	if path := os.Getenv("REDB_APPHOST_KEYRING_PATH"); path != "" {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "redb-apphost-keyring.json")
	}
	return filepath.Join(homeDir, ".local", "share", "redb-apphost", "keyring.json")
}

// GetBackendFromEnv returns the configured backend, BackendAuto by default
func GetBackendFromEnv() string {
	switch b := os.Getenv("REDB_APPHOST_KEYRING_BACKEND"); b {
	case BackendSystem, BackendFile:
		return b
	default:
		return BackendAuto
	}
}
