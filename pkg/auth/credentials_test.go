package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestParseCookieString(t *testing.T) {
	cookies := ParseCookieString(" wap_sid2=abc==; pass_ticket = x%2By ;broken; =noname; appmsg_token=")

	require.Len(t, cookies, 3)
	assert.Equal(t, Cookie{Name: "wap_sid2", Value: "abc==", Domain: ".qq.com", Path: "/"}, cookies[0])
	assert.Equal(t, "pass_ticket", cookies[1].Name)
	assert.Equal(t, "x%2By", cookies[1].Value)
	assert.Equal(t, "appmsg_token", cookies[2].Name)
	assert.Empty(t, cookies[2].Value)
}

func TestLoadCookies(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		cookies, err := LoadCookies("  ")
		require.NoError(t, err)
		assert.Empty(t, cookies)
	})

	t.Run("raw string", func(t *testing.T) {
		cookies, err := LoadCookies("a=1; b=2")
		require.NoError(t, err)
		assert.Len(t, cookies, 2)
	})

	t.Run("file with header prefix", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cookie.txt")
		require.NoError(t, os.WriteFile(path, []byte("Cookie: wap_sid2=s; uin=u\n"), 0600))

		cookies, err := LoadCookies(path)
		require.NoError(t, err)
		require.Len(t, cookies, 2)
		assert.Equal(t, "wap_sid2", cookies[0].Name)
		assert.Equal(t, "u", cookies[1].Value)
	})

	t.Run("raw string with header prefix", func(t *testing.T) {
		cookies, err := LoadCookies("COOKIE: a=1")
		require.NoError(t, err)
		require.Len(t, cookies, 1)
		assert.Equal(t, "a", cookies[0].Name)
	})
}

func TestCookieHeader(t *testing.T) {
	assert.Equal(t, "a=1; b=2", CookieHeader(ParseCookieString("a=1;b=2")))
}

func TestManagerLifecycle(t *testing.T) {
	manager, store := NewMockManager()

	err := manager.Store(&Profile{Name: "work", Cookie: "wap_sid2=secretvalue123"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count())

	p, err := manager.Retrieve("work")
	require.NoError(t, err)
	assert.Equal(t, "wap_sid2=secretvalue123", p.Cookie)
	assert.False(t, p.LastModified.IsZero())

	profiles, err := manager.List()
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	require.NoError(t, manager.Delete("work"))
	_, err = manager.Retrieve("work")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.ErrorIs(t, manager.Delete("work"), ErrCredentialsNotFound)
}

func TestManagerRejectsInvalidProfiles(t *testing.T) {
	manager, _ := NewMockManager()

	assert.Error(t, manager.Store(&Profile{Cookie: "a=1"}))
	assert.ErrorIs(t, manager.Store(&Profile{Name: "x", Cookie: "no pairs here"}), ErrInvalidCredentials)
}

func TestManagerStoreFallsThrough(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = errors.New("locked")
	working := NewMockStore()
	manager := NewManagerWithStores(broken, working)

	require.NoError(t, manager.Store(&Profile{Name: "default", Cookie: "a=1"}))
	assert.Equal(t, 0, broken.Count())
	assert.Equal(t, 1, working.Count())
}

func TestManagerListPrefersNewest(t *testing.T) {
	first := NewMockStore()
	second := NewMockStore()
	manager := NewManagerWithStores(first, second)

	require.NoError(t, second.Store(&Profile{Name: "b", Cookie: "x=old"}))
	require.NoError(t, manager.Store(&Profile{Name: "b", Cookie: "x=new"}))
	require.NoError(t, manager.Store(&Profile{Name: "a", Cookie: "x=1"}))

	profiles, err := manager.List()
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "a", profiles[0].Name)
	assert.Equal(t, "x=new", profiles[1].Cookie)
}

func TestResolvePrecedence(t *testing.T) {
	t.Setenv(CookieEnv, "env=1")
	store := NewMockStore()
	manager := NewManagerWithStores(store, NewEnvironmentStore())

	cookies, source, err := manager.Resolve("", "default")
	require.NoError(t, err)
	assert.Equal(t, SourceEnvironment, source)
	assert.Equal(t, "env", cookies[0].Name)

	require.NoError(t, store.Store(&Profile{Name: "default", Cookie: "stored=1"}))
	cookies, source, err = manager.Resolve("", "")
	require.NoError(t, err)
	assert.Equal(t, SourceProfile, source)
	assert.Equal(t, "stored", cookies[0].Name)

	cookies, source, err = manager.Resolve("arg=1", "default")
	require.NoError(t, err)
	assert.Equal(t, SourceArgument, source)
	assert.Equal(t, "arg", cookies[0].Name)
}

func TestResolveNothingMeansInteractive(t *testing.T) {
	t.Setenv(CookieEnv, "")
	manager := NewManagerWithStores(NewMockStore(), NewEnvironmentStore())

	cookies, source, err := manager.Resolve("", "default")
	require.NoError(t, err)
	assert.Empty(t, cookies)
	assert.Equal(t, SourceNone, source)
}

func TestResolveRejectsUnparseableArgument(t *testing.T) {
	manager, _ := NewMockManager()

	_, _, err := manager.Resolve("garbage", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSanitizeProfile(t *testing.T) {
	p := &Profile{Name: "default", Cookie: "wap_sid2=abcdefghijklmnop; uin=12"}

	s := SanitizeProfile(p)
	assert.Equal(t, "wap_sid2=abcd...mnop; uin=********", s.Cookie)
	assert.Equal(t, "default", s.Name)
	assert.Nil(t, SanitizeProfile(nil))
}

func TestEncryptedFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cookies.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "test_passphrase_123")
	require.NoError(t, err)

	_, err = store.Retrieve("default")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)

	require.NoError(t, store.Store(&Profile{Name: "default", Cookie: "wap_sid2=one"}))
	require.NoError(t, store.Store(&Profile{Name: "alt", Cookie: "wap_sid2=two"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "wap_sid2")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	p, err := store.Retrieve("alt")
	require.NoError(t, err)
	assert.Equal(t, "wap_sid2=two", p.Cookie)
	assert.True(t, store.Exists("default"))

	profiles, err := store.List()
	require.NoError(t, err)
	assert.Len(t, profiles, 2)

	require.NoError(t, store.Delete("alt"))
	require.NoError(t, store.Delete("default"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.enc")
	store, err := NewEncryptedFileStoreWithPassphrase(path, "right")
	require.NoError(t, err)
	require.NoError(t, store.Store(&Profile{Name: "default", Cookie: "a=1"}))

	other, err := NewEncryptedFileStoreWithPassphrase(path, "wrong")
	require.NoError(t, err)
	_, err = other.Retrieve("default")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStorePassphraseFromEnv(t *testing.T) {
	t.Setenv(PassphraseEnv, "from-env")
	path := filepath.Join(t.TempDir(), "cookies.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(&Profile{Name: "default", Cookie: "a=1"}))

	reopened, err := NewEncryptedFileStoreWithPassphrase(path, "from-env")
	require.NoError(t, err)
	assert.True(t, reopened.Exists("default"))
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()

	store, err := NewKeyringStore()
	require.NoError(t, err)

	require.NoError(t, store.Store(&Profile{Name: "b", Cookie: "x=2"}))
	require.NoError(t, store.Store(&Profile{Name: "a", Cookie: "x=1"}))
	require.NoError(t, store.Store(&Profile{Name: "a", Cookie: "x=3"}))

	profiles, err := store.List()
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "a", profiles[0].Name)
	assert.Equal(t, "x=3", profiles[0].Cookie)

	require.NoError(t, store.Delete("a"))
	assert.False(t, store.Exists("a"))
	assert.ErrorIs(t, store.Delete("a"), ErrCredentialsNotFound)

	profiles, err = store.List()
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

func TestEnvironmentStoreIsReadOnly(t *testing.T) {
	t.Setenv(CookieEnv, "a=1")
	store := NewEnvironmentStore()

	assert.ErrorIs(t, store.Store(&Profile{Name: "x", Cookie: "a=1"}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("x"), ErrStoreUnavailable)
	assert.True(t, store.Exists("anything"))

	p, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile, p.Name)
}
