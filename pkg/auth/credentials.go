package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"
)

// Profile is a named, pre-obtained platform session stored as a raw cookie header
type Profile struct {
	Name         string    `json:"name"`
	Cookie       string    `json:"cookie"`
	LastModified time.Time `json:"last_modified"`
}

// Cookies parses the stored header into injectable cookies
func (p *Profile) Cookies() []Cookie {
	return ParseCookieString(p.Cookie)
}

// CookieStore is the interface for storing and retrieving cookie profiles
type CookieStore interface {
	Store(profile *Profile) error
	Retrieve(name string) (*Profile, error)
	List() ([]*Profile, error)
	Delete(name string) error
	Exists(name string) bool
}

// Manager handles profile storage across several backends, first one wins
type Manager struct {
	stores []CookieStore
}

// NewManager creates a manager backed by the system keychain when available,
// an encrypted file, and finally the environment.
func NewManager() (*Manager, error) {
	var stores []CookieStore

	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "cookies.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager over an explicit store list
func NewManagerWithStores(stores ...CookieStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves a profile using the first store that accepts it
func (m *Manager) Store(profile *Profile) error {
	if profile == nil || profile.Name == "" {
		return errors.New("profile name is required")
	}
	if len(profile.Cookies()) == 0 {
		return fmt.Errorf("%w: cookie string contains no name=value pairs", ErrInvalidCredentials)
	}

	profile.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(profile)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store profile: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets a profile from the first store that has it
func (m *Manager) Retrieve(name string) (*Profile, error) {
	for _, store := range m.stores {
		if profile, err := store.Retrieve(name); err == nil && profile != nil {
			return profile, nil
		}
	}
	return nil, fmt.Errorf("%w: profile %s", ErrCredentialsNotFound, name)
}

// List returns every stored profile, most recent version per name, ordered by name
func (m *Manager) List() ([]*Profile, error) {
	byName := make(map[string]*Profile)

	for _, store := range m.stores {
		profiles, err := store.List()
		if err != nil {
			continue
		}
		for _, p := range profiles {
			if existing, ok := byName[p.Name]; !ok || p.LastModified.After(existing.LastModified) {
				byName[p.Name] = p
			}
		}
	}

	result := make([]*Profile, 0, len(byName))
	for _, p := range byName {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Delete removes a profile from every store holding it
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil && !errors.Is(lastErr, ErrStoreUnavailable) {
		return fmt.Errorf("failed to delete profile: %w", lastErr)
	}
	return fmt.Errorf("%w: profile %s", ErrCredentialsNotFound, name)
}

// Source names where Resolve found the cookies
type Source string

const (
	SourceNone        Source = ""
	SourceArgument    Source = "argument"
	SourceProfile     Source = "profile"
	SourceEnvironment Source = "environment"
)

// Resolve picks session cookies: an explicit argument (raw string or file
// path) wins over a stored profile, which wins over the environment.
// No cookies and a nil error mean the caller should log in interactively.
func (m *Manager) Resolve(arg, profile string) ([]Cookie, Source, error) {
	if arg != "" {
		cookies, err := LoadCookies(arg)
		if err != nil {
			return nil, SourceNone, err
		}
		if len(cookies) == 0 {
			return nil, SourceNone, fmt.Errorf("%w: no cookies in %q", ErrInvalidCredentials, maskString(arg))
		}
		return cookies, SourceArgument, nil
	}

	if profile == "" {
		profile = DefaultProfile
	}
	for _, store := range m.stores {
		p, err := store.Retrieve(profile)
		if err != nil || p == nil {
			continue
		}
		cookies := p.Cookies()
		if len(cookies) == 0 {
			continue
		}
		if _, isEnv := store.(*EnvironmentStore); isEnv {
			return cookies, SourceEnvironment, nil
		}
		return cookies, SourceProfile, nil
	}

	return nil, SourceNone, nil
}

// DefaultProfile is used when no profile name is given
const DefaultProfile = "default"

// getConfigDir returns the per-user configuration directory, creating it
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "wxarchiver")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "wxarchiver")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "wxarchiver")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "wxarchiver")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// SanitizeProfile returns a copy safe to print: cookie names stay visible, values are masked
func SanitizeProfile(profile *Profile) *Profile {
	if profile == nil {
		return nil
	}

	cookies := profile.Cookies()
	for i := range cookies {
		cookies[i].Value = maskString(cookies[i].Value)
	}

	return &Profile{
		Name:         profile.Name,
		Cookie:       CookieHeader(cookies),
		LastModified: profile.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
