package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/iar/pkg/introspect"
)

func TestParseSubject(t *testing.T) {
	tests := []struct {
		sub        string
		scheme     string
		identifier string
		wantErr    bool
	}{
		{sub: "mock:test0001", scheme: "mock", identifier: "test0001"},
		{sub: "crsid:abc12", scheme: "crsid", identifier: "abc12"},
		{sub: "scheme:with:colon", scheme: "scheme", identifier: "with:colon"},
		{sub: "nocolon", wantErr: true},
		{sub: ":test0001", wantErr: true},
		{sub: "mock:", wantErr: true},
		{sub: "mo+ck:test0001", wantErr: true},
		{sub: "mock:test+0001", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.sub, func(t *testing.T) {
			scheme, identifier, err := ParseSubject(tt.sub)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedSubject)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, scheme)
			assert.Equal(t, tt.identifier, identifier)
		})
	}
}

func TestUsernameIsInjective(t *testing.T) {
	assert.Equal(t, "mock+test0001", Username("mock", "test0001"))
	assert.NotEqual(t, Username("a", "b:c"), Username("a:b", "c"))
}

func TestUser_HasPerm(t *testing.T) {
	regular := &User{IsActive: true, Permissions: []string{PermViewAsset}}
	assert.True(t, regular.HasPerm(PermViewAsset))
	assert.False(t, regular.HasPerm(PermChangeAsset))

	super := &User{IsActive: true, IsSuperuser: true}
	assert.True(t, super.HasPerm(PermDeleteAsset))

	inactive := &User{IsActive: false, IsSuperuser: true}
	assert.False(t, inactive.HasPerm(PermViewAsset))

	var anonymous *User
	assert.False(t, anonymous.HasPerm(PermViewAsset))
}

func TestUser_Subject(t *testing.T) {
	user := &User{Username: "mock+test0001", Lookup: &UserLookup{Scheme: "mock", Identifier: "test0001"}}
	s := user.Subject()
	assert.Equal(t, "mock+test0001", s.Username)
	assert.Equal(t, "mock", s.Scheme)
	assert.Equal(t, "test0001", s.Identifier)

	unbound := (&User{Username: "x"}).Subject()
	assert.Empty(t, unbound.Scheme)

	var anonymous *User
	assert.Nil(t, anonymous.Subject())
}

func TestAuthContext(t *testing.T) {
	ctx := &AuthContext{Token: &introspect.TokenInfo{Scope: "assetregister lookup"}}
	assert.True(t, ctx.HasScopes("assetregister"))
	assert.False(t, ctx.HasScopes("assetregister", "admin"))
	assert.Empty(t, ctx.Username())

	var missing *AuthContext
	assert.False(t, missing.HasScopes())
}

func TestBearerToken(t *testing.T) {
	tests := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":     {"abc", true},
		"":               {"", false},
		"Bearer":         {"", false},
		"Bearer ":        {"", false},
		"Basic abc":      {"", false},
		"bearer abc":     {"", false},
		"Bearer abc def": {"", false},
	}
	for header, want := range tests {
		token, ok := BearerToken(header)
		assert.Equal(t, want.ok, ok, header)
		assert.Equal(t, want.token, token, header)
	}
}
