package auth

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserToken_Valid(t *testing.T) {
	id := uuid.NewString()
	creds, err := ParseUserToken(id + ":secret-key")
	require.NoError(t, err)
	assert.Equal(t, id, creds.UserID())
	assert.Equal(t, "secret-key", creds.APIKey())
}

func TestParseUserToken_RoundTrip(t *testing.T) {
	id := uuid.NewString()
	header := id + ":abc123"

	creds, err := ParseUserToken(header)
	require.NoError(t, err)
	assert.Equal(t, header, creds.String())
}

func TestParseUserToken_Empty(t *testing.T) {
	_, err := ParseUserToken("")
	assert.ErrorIs(t, err, ErrEmptyUserToken)
}

func TestParseUserToken_Malformed(t *testing.T) {
	cases := []string{
		"no-colon",
		uuid.NewString(),                 // missing key part
		uuid.NewString() + ":",           // empty key
		":secret",                        // empty uuid
		"not-a-uuid:secret",              // invalid uuid
		uuid.NewString() + ":a:b",        // two colons
		"00000000-0000-0000-0000-000000000000:x", // not v4
	}
	for _, header := range cases {
		_, err := ParseUserToken(header)
		assert.ErrorIs(t, err, ErrImproperUserToken, "header=%q", header)
	}
}

func TestVerifyKey(t *testing.T) {
	assert.True(t, VerifyKey("abc", "abc"))
	assert.False(t, VerifyKey("abc", "abd"))
	assert.False(t, VerifyKey("abc", ""))
}

func TestGenerateAPIKey(t *testing.T) {
	key, err := GenerateAPIKey()
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, KeyLength)

	other, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestScopeDerivation(t *testing.T) {
	t.Run("anonymous", func(t *testing.T) {
		ctx := AnonymousContext()
		assert.True(t, ctx.IsAnonymous())
		assert.Equal(t, []Scope{ScopeAnonymous}, ctx.Scopes())
		assert.False(t, ctx.HasScope(ScopeAuthenticated))
	})

	t.Run("regular user", func(t *testing.T) {
		ctx := NewContext(&User{ID: "u1", Roles: []string{"public", "cmip6"}})
		assert.False(t, ctx.IsAnonymous())
		assert.True(t, ctx.HasScope(ScopeAuthenticated))
		assert.True(t, ctx.HasScope(Scope("cmip6")))
		assert.False(t, ctx.HasScope(ScopeAdmin))
	})

	t.Run("admin is a superset", func(t *testing.T) {
		ctx := NewContext(&User{ID: "u2", Roles: []string{RoleAdmin}})
		assert.True(t, ctx.HasScope(ScopeAdmin))
		assert.True(t, ctx.HasScope(Scope("internal")))
		assert.True(t, ctx.Authorized("internal"))
	})
}

func TestAuthorized(t *testing.T) {
	public := NewContext(&User{ID: "u", Roles: []string{RolePublic}})
	assert.True(t, public.Authorized(""))
	assert.True(t, public.Authorized(RolePublic))
	assert.False(t, public.Authorized(RoleInternal))

	anon := AnonymousContext()
	assert.True(t, anon.Authorized(RolePublic))
	assert.False(t, anon.Authorized(RoleInternal))
}
