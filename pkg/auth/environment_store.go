package auth

import (
	"os"
	"time"
)

// CookieEnv holds a raw cookie header for non-interactive runs
const CookieEnv = "WXARCHIVER_COOKIE"

// EnvironmentStore implements CookieStore over WXARCHIVER_COOKIE.
// It is read-only and answers for any profile name.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment cookie under the requested name
func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	cookie := os.Getenv(CookieEnv)
	if cookie == "" {
		return nil, ErrCredentialsNotFound
	}
	if name == "" {
		name = DefaultProfile
	}
	return &Profile{
		Name:         name,
		Cookie:       cookie,
		LastModified: time.Time{},
	}, nil
}

// List returns a single profile if the environment variable is set
func (e *EnvironmentStore) List() ([]*Profile, error) {
	p, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{p}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists reports whether the environment variable is set
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv(CookieEnv) != ""
}
