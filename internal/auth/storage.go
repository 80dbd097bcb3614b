package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zalando/go-keyring"
)

// ErrNotFound is returned by a StorageBackend when no secret exists for a name
var ErrNotFound = errors.New("credential not found")

// StorageBackend defines the interface for credential storage
type StorageBackend interface {
	Save(name string, data []byte) error
	Load(name string) ([]byte, error)
	Delete(name string) error
	List() ([]string, error)
	Name() string
}

// storageName maps an account key (server URL + email) onto a name that is
// safe as a file name and a keyring user
func storageName(accountKey string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(accountKey))
}

func accountKeyFromName(name string) (string, bool) {
	raw, err := base64.RawURLEncoding.DecodeString(name)
	if err != nil {
		return "", false
	}
	return string(raw), true
}

// KeyringStorage uses system keyring for credential storage. The keyring has
// no enumeration API so stored names are tracked in an index file.
type KeyringStorage struct {
	serviceName string
	indexFile   string
}

// NewKeyringStorage creates a keyring storage backend
func NewKeyringStorage(serviceName, configDir string) *KeyringStorage {
	return &KeyringStorage{
		serviceName: serviceName,
		indexFile:   filepath.Join(configDir, "credentials.json"),
	}
}

func (s *KeyringStorage) Save(name string, data []byte) error {
	if err := keyring.Set(s.serviceName, name, string(data)); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	return s.updateIndex(name, true)
}

func (s *KeyringStorage) Load(name string) ([]byte, error) {
	data, err := keyring.Get(s.serviceName, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	return []byte(data), nil
}

func (s *KeyringStorage) Delete(name string) error {
	if err := keyring.Delete(s.serviceName, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			_ = s.updateIndex(name, false)
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return s.updateIndex(name, false)
}

func (s *KeyringStorage) List() ([]string, error) {
	data, err := os.ReadFile(s.indexFile)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *KeyringStorage) Name() string {
	return "system-keyring"
}

func (s *KeyringStorage) updateIndex(name string, present bool) error {
	names, err := s.List()
	if err != nil {
		return err
	}

	set := make(map[string]struct{}, len(names)+1)
	for _, n := range names {
		set[n] = struct{}{}
	}
	if present {
		set[name] = struct{}{}
	} else {
		delete(set, name)
	}

	updated := make([]string, 0, len(set))
	for n := range set {
		updated = append(updated, n)
	}
	sort.Strings(updated)

	data, err := json.Marshal(updated)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.indexFile), 0700); err != nil {
		return err
	}
	return os.WriteFile(s.indexFile, data, 0600)
}

// EncryptedFileStorage stores credentials in encrypted files
type EncryptedFileStorage struct {
	baseDir string
	key     []byte
}

// NewEncryptedFileStorage creates an encrypted file storage backend
func NewEncryptedFileStorage(baseDir string) (*EncryptedFileStorage, error) {
	key, err := getOrCreateEncryptionKey(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get encryption key: %w", err)
	}

	return &EncryptedFileStorage{
		baseDir: baseDir,
		key:     key,
	}, nil
}

func (s *EncryptedFileStorage) Save(name string, data []byte) error {
	encrypted, err := s.encrypt(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	credFile := s.getCredentialFilePath(name)
	if err := os.MkdirAll(filepath.Dir(credFile), 0700); err != nil {
		return err
	}

	return os.WriteFile(credFile, encrypted, 0600)
}

func (s *EncryptedFileStorage) Load(name string) ([]byte, error) {
	encrypted, err := os.ReadFile(s.getCredentialFilePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return s.decrypt(encrypted)
}

func (s *EncryptedFileStorage) Delete(name string) error {
	return removeCredentialFile(s.getCredentialFilePath(name))
}

func (s *EncryptedFileStorage) List() ([]string, error) {
	return listCredentialFiles(s.baseDir, ".enc")
}

func (s *EncryptedFileStorage) Name() string {
	return "encrypted-file"
}

func (s *EncryptedFileStorage) getCredentialFilePath(name string) string {
	return filepath.Join(s.baseDir, "credentials", name+".enc")
}

// encrypt encrypts data using AES-GCM
func (s *EncryptedFileStorage) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt decrypts data using AES-GCM
func (s *EncryptedFileStorage) decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("invalid ciphertext")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertext = ciphertext[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	return plaintext, nil
}

// PlainFileStorage stores credentials in plain JSON files (development only)
type PlainFileStorage struct {
	baseDir string
}

// NewPlainFileStorage creates a plain file storage backend
func NewPlainFileStorage(baseDir string) *PlainFileStorage {
	return &PlainFileStorage{
		baseDir: baseDir,
	}
}

func (s *PlainFileStorage) Save(name string, data []byte) error {
	credFile := s.getCredentialFilePath(name)
	if err := os.MkdirAll(filepath.Dir(credFile), 0700); err != nil {
		return err
	}
	return os.WriteFile(credFile, data, 0600)
}

func (s *PlainFileStorage) Load(name string) ([]byte, error) {
	data, err := os.ReadFile(s.getCredentialFilePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

func (s *PlainFileStorage) Delete(name string) error {
	return removeCredentialFile(s.getCredentialFilePath(name))
}

func (s *PlainFileStorage) List() ([]string, error) {
	return listCredentialFiles(s.baseDir, ".json")
}

func (s *PlainFileStorage) Name() string {
	return "plain-file"
}

func (s *PlainFileStorage) getCredentialFilePath(name string) string {
	return filepath.Join(s.baseDir, "credentials", name+".json")
}

func removeCredentialFile(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func listCredentialFiles(baseDir, ext string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(baseDir, "credentials"))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ext {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ext))
	}
	sort.Strings(names)
	return names, nil
}

// getOrCreateEncryptionKey generates or loads the encryption key
func getOrCreateEncryptionKey(baseDir string) ([]byte, error) {
	keyFile := filepath.Join(baseDir, ".keyfile")

	if data, err := os.ReadFile(keyFile); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(data))
		if err == nil && len(key) == 32 {
			return key, nil
		}
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}

	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyFile, []byte(encoded), 0600); err != nil {
		return nil, err
	}

	return key, nil
}
