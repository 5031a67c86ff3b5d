package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockVerifier is a mock implementation of the auth.Verifier interface for testing purposes.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, tokenString string) (jwt.Token, error) {
	args := m.Called(ctx, tokenString)

	var token jwt.Token
	if args.Get(0) != nil {
		token = args.Get(0).(jwt.Token)
	}
	return token, args.Error(1)
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestOptionalAuth(t *testing.T) {
	// given
	validToken, err := jwt.NewBuilder().
		Subject("user-123").
		Issuer("test-issuer").
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(time.Hour)).
		Build()
	require.NoError(t, err)
	noSubject, err := jwt.NewBuilder().Issuer("test-issuer").Build()
	require.NoError(t, err)

	testCases := []struct {
		name               string
		authHeader         string
		setupMock          func(m *MockVerifier)
		expectedStatusCode int
		shouldCallNext     bool
		expectedUserID     string
	}{
		{
			name:               "Anonymous - no header",
			authHeader:         "",
			setupMock:          func(m *MockVerifier) {},
			expectedStatusCode: http.StatusOK,
			shouldCallNext:     true,
		},
		{
			name:       "Success - valid bearer token",
			authHeader: "Bearer valid-token",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", mock.Anything, "valid-token").Return(validToken, nil)
			},
			expectedStatusCode: http.StatusOK,
			shouldCallNext:     true,
			expectedUserID:     "user-123",
		},
		{
			name:               "Failure - not a bearer token",
			authHeader:         "Basic abc",
			setupMock:          func(m *MockVerifier) {},
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:       "Failure - invalid token",
			authHeader: "Bearer bad-token",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", mock.Anything, "bad-token").Return(nil, errors.New("signature mismatch"))
			},
			expectedStatusCode: http.StatusUnauthorized,
		},
		{
			name:       "Failure - token without subject",
			authHeader: "Bearer anon-token",
			setupMock: func(m *MockVerifier) {
				m.On("Verify", mock.Anything, "anon-token").Return(noSubject, nil)
			},
			expectedStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			verifier := new(MockVerifier)
			tc.setupMock(verifier)
			nextCalled := false
			var gotUserID string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				gotUserID, _ = GetUserID(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rr := httptest.NewRecorder()

			// when
			OptionalAuth(verifier, discardLogger)(next).ServeHTTP(rr, req)

			// then
			assert.Equal(t, tc.expectedStatusCode, rr.Code)
			assert.Equal(t, tc.shouldCallNext, nextCalled)
			assert.Equal(t, tc.expectedUserID, gotUserID)
			verifier.AssertExpectations(t)
		})
	}
}

func TestOptionalAuth_NilVerifier(t *testing.T) {
	// given
	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { nextCalled = true })
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer whatever")

	// when
	OptionalAuth(nil, discardLogger)(next).ServeHTTP(httptest.NewRecorder(), req)

	// then
	assert.True(t, nextCalled)
}

func TestSession(t *testing.T) {
	cookie := SessionCookie{Name: "sid", MaxAge: time.Hour}
	existing := uuid.NewString()

	testCases := []struct {
		name        string
		cookieValue string
		expectNew   bool
	}{
		{name: "no cookie starts a session", expectNew: true},
		{name: "malformed cookie starts a session", cookieValue: "not-a-uuid", expectNew: true},
		{name: "valid cookie is reused", cookieValue: existing},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = GetSessionID(r.Context())
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.cookieValue != "" {
				req.AddCookie(&http.Cookie{Name: "sid", Value: tc.cookieValue})
			}
			rr := httptest.NewRecorder()

			// when
			Session(cookie)(next).ServeHTTP(rr, req)

			// then
			require.NotEmpty(t, got)
			setCookies := rr.Result().Cookies()
			if tc.expectNew {
				require.Len(t, setCookies, 1)
				assert.Equal(t, got, setCookies[0].Value)
				assert.NotEqual(t, tc.cookieValue, got)
			} else {
				assert.Empty(t, setCookies)
				assert.Equal(t, existing, got)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	testCases := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{name: "forwarded for", headers: map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, remote: "10.0.0.1:1234", expected: "203.0.113.7"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.2"}, remote: "10.0.0.1:1234", expected: "198.51.100.2"},
		{name: "remote addr", remote: "192.0.2.1:5555", expected: "192.0.2.1"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.expected, ClientIP(req))
		})
	}
}
