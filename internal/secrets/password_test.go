package secrets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestGetPrefersKeyring(t *testing.T) {
	keyring.MockInit()
	t.Setenv("JOBMATCH_HH_TOKEN", "from-env")

	s := HeadHunterToken()
	require.NoError(t, Set(s, "from-keyring"))

	v, err := Get(s)
	require.NoError(t, err)
	assert.Equal(t, "from-keyring", v)

	require.NoError(t, Delete(s))
	v, err = Get(s)
	require.NoError(t, err)
	assert.Equal(t, "from-env", v)
}

func TestGetNotFound(t *testing.T) {
	keyring.MockInit()
	t.Setenv("JOBMATCH_IMAP_PASSWORD", "")

	_, err := Get(IMAPPassword("me@example.com", "imap.example.com"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSetRejectsEmpty(t *testing.T) {
	keyring.MockInit()

	assert.Error(t, Set(Secret{Name: "x"}, "value"))
	assert.Error(t, Set(AdzunaAppKey("id"), "  "))
}

func TestByName(t *testing.T) {
	s, ok := ByName("HH", "", "", "")
	require.True(t, ok)
	assert.Equal(t, HeadHunterToken(), s)

	s, ok = ByName("imap", "me", "host", "")
	require.True(t, ok)
	assert.Equal(t, "jobmatch:imap:me@host", s.Account)

	_, ok = ByName("github", "", "", "")
	assert.False(t, ok)
}
