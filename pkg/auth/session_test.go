package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestSessionIssuer_RoundTrip(t *testing.T) {
	issuer := NewSessionIssuer(testSecret, "contractguard", time.Hour)

	session, err := issuer.Issue(&AuthContext{
		UserID:         42,
		OrganizationID: 7,
		Email:          "owner@acme.test",
		IsOwner:        true,
		TokenVersion:   3,
		Permissions:    NewPermissionSet("contract.view.all", "contract.create"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"contract.create", "contract.view.all"}, session.Permissions)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, 5*time.Second)

	ac, err := issuer.Parse(session.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), ac.UserID)
	assert.Equal(t, int64(7), ac.OrganizationID)
	assert.True(t, ac.IsOwner)
	assert.False(t, ac.IsSuperAdmin)
	assert.Equal(t, 3, ac.TokenVersion)
	assert.True(t, ac.Permissions.Has("contract.create"))
	assert.NotEmpty(t, ac.TokenID)
}

func TestSessionIssuer_EmptyPermissionsStayPresent(t *testing.T) {
	issuer := NewSessionIssuer(testSecret, "contractguard", time.Hour)

	session, err := issuer.Issue(&AuthContext{UserID: 1, OrganizationID: 1})
	require.NoError(t, err)

	ac, err := issuer.Parse(session.Token)
	require.NoError(t, err)
	assert.NotNil(t, ac.Permissions)
	assert.Empty(t, ac.Permissions)
}

func TestSessionIssuer_MissingPermsClaimIsAbsent(t *testing.T) {
	claims := jwt.MapClaims{
		"iss": "contractguard",
		"sub": "5",
		"org": 1,
		"ver": 0,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	ac, err := NewSessionIssuer(testSecret, "contractguard", time.Hour).Parse(token)
	require.NoError(t, err)
	assert.Nil(t, ac.Permissions)
}

func TestSessionIssuer_Rejects(t *testing.T) {
	issuer := NewSessionIssuer(testSecret, "contractguard", time.Hour)
	valid, err := issuer.Issue(&AuthContext{UserID: 1, OrganizationID: 1})
	require.NoError(t, err)

	expiredIssuer := NewSessionIssuer(testSecret, "contractguard", time.Hour)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredIssuer.Issue(&AuthContext{UserID: 1, OrganizationID: 1})
	require.NoError(t, err)

	otherIssuer, err := NewSessionIssuer(testSecret, "someone-else", time.Hour).Issue(&AuthContext{UserID: 1})
	require.NoError(t, err)

	forged, err := NewSessionIssuer([]byte("another-secret-another-secret-xx"), "contractguard", time.Hour).
		Issue(&AuthContext{UserID: 1})
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"iss": "contractguard", "sub": "1", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not-a-jwt",
		"tampered":       valid.Token + "x",
		"expired":        expired.Token,
		"wrong issuer":   otherIssuer.Token,
		"wrong secret":   forged.Token,
		"none algorithm": none,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Parse(token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestSessionIssuer_IssueRequiresUser(t *testing.T) {
	issuer := NewSessionIssuer(testSecret, "contractguard", time.Hour)
	_, err := issuer.Issue(nil)
	assert.Error(t, err)
	_, err = issuer.Issue(&AuthContext{})
	assert.Error(t, err)
}

func TestSessionIssuer_ParseCarriesExpiry(t *testing.T) {
	issuer := NewSessionIssuer(testSecret, "contractguard", time.Hour)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return fixed }

	session, err := issuer.Issue(&AuthContext{UserID: 9, OrganizationID: 1})
	require.NoError(t, err)

	ac, err := issuer.Parse(session.Token)
	require.NoError(t, err)
	assert.True(t, fixed.Add(time.Hour).Equal(ac.ExpiresAt))
}
