package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testParams = HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := hashWithParams("hunter22", testParams)
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := VerifyPassword("hunter22", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("hunter23", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPasswordSaltsDiffer(t *testing.T) {
	a, err := hashWithParams("same", testParams)
	require.NoError(t, err)
	b, err := hashWithParams("same", testParams)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyPasswordMalformed(t *testing.T) {
	_, err := VerifyPassword("x", "not-a-hash")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = VerifyPassword("x", "$argon2id$v=1$m=1024,t=1,p=1$c2FsdA$a2V5")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestSignerRoundTrip(t *testing.T) {
	s, err := NewSigner(time.Hour)
	require.NoError(t, err)

	id := uuid.New()
	token, err := s.Sign(id, "alice")
	require.NoError(t, err)

	gotID, gotName, err := s.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "alice", gotName)
}

func TestSignerRejectsForeignKey(t *testing.T) {
	a, err := NewSigner(0)
	require.NoError(t, err)
	b, err := NewSigner(0)
	require.NoError(t, err)

	token, err := a.Sign(uuid.New(), "bob")
	require.NoError(t, err)

	_, _, err = b.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignerExpiredToken(t *testing.T) {
	s, err := NewSigner(time.Nanosecond)
	require.NoError(t, err)

	token, err := s.Sign(uuid.New(), "carol")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, _, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(r, "authToken"))

	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", TokenFromRequest(r, "authToken"))

	r.AddCookie(&http.Cookie{Name: "authToken", Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r, "authToken"))
}

func TestSessionCookie(t *testing.T) {
	w := httptest.NewRecorder()
	SetSessionCookie(w, "authToken", "tok", time.Hour, false)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "tok", cookies[0].Value)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.True(t, cookies[0].HttpOnly)

	w = httptest.NewRecorder()
	ClearSessionCookie(w, "authToken", false)
	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}
