package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboarding/internal/domain"
	"onboarding/internal/session"
)

func authed() context.Context {
	return session.WithSession(context.Background(), &session.AuthSession{
		Token:     "tok-123",
		Subject:   "user-1",
		ClientID:  "AB1234",
		ExpiresAt: time.Now().Add(time.Hour),
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL)
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestFetchCheckpoint(t *testing.T) {
	t.Run("routes document steps to the documents resource", func(t *testing.T) {
		var gotPath, gotAuth string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotAuth = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{"url":"https://cdn/ipv.jpg"}`))
		})

		body, err := c.FetchCheckpoint(authed(), domain.StepIPV)
		require.NoError(t, err)
		assert.JSONEq(t, `{"url":"https://cdn/ipv.jpg"}`, string(body))
		assert.Equal(t, "/kyc/documents/IPV", gotPath)
		assert.Equal(t, "Bearer tok-123", gotAuth)
	})

	t.Run("routes plain steps to the checkpoints resource", func(t *testing.T) {
		var gotPath string
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			_, _ = w.Write([]byte(`{"pan":"ABCDE1234F"}`))
		})
		_, err := c.FetchCheckpoint(authed(), domain.StepPAN)
		require.NoError(t, err)
		assert.Equal(t, "/kyc/checkpoints/PAN", gotPath)
	})

	t.Run("missing session fails before any request", func(t *testing.T) {
		called := false
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { called = true })
		_, err := c.FetchCheckpoint(context.Background(), domain.StepPAN)
		require.Error(t, err)
		assert.Equal(t, CategoryAuth, CategoryOf(err))
		assert.False(t, called)
	})
}

func TestClassify(t *testing.T) {
	cases := []struct {
		status    int
		body      string
		category  Category
		retryable bool
		code      string
	}{
		{http.StatusNoContent, "", CategoryNotReady, false, ""},
		{http.StatusNotFound, "", CategoryNotReady, false, ""},
		{http.StatusUnauthorized, `{"error_code":"token_expired"}`, CategoryAuth, false, "token_expired"},
		{http.StatusBadGateway, "", CategoryTransient, true, ""},
		{http.StatusConflict, `{"error_code":"password_already_set","message":"already set"}`, CategoryValidation, false, "password_already_set"},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			_, err := classify("op", tc.status, []byte(tc.body))
			require.Error(t, err)
			assert.Equal(t, tc.category, CategoryOf(err))
			assert.Equal(t, tc.retryable, IsRetryable(err))
			assert.Equal(t, tc.code, BusinessCode(err))
		})
	}

	body, err := classify("op", http.StatusOK, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}

func TestInitiateVerification(t *testing.T) {
	t.Run("decodes the action descriptor", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/kyc/verifications/upi_collect", r.URL.Path)
			var req InitiateRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.Mobile)
			_, _ = w.Write([]byte(`{"reference":"ref-1","upi_payload":"upi://pay?pa=x"}`))
		})
		resp, err := c.InitiateVerification(authed(), "upi_collect", InitiateRequest{Mobile: true})
		require.NoError(t, err)
		assert.Equal(t, "ref-1", resp.Reference)
		assert.Equal(t, "upi://pay?pa=x", resp.UPIPayload)
	})

	t.Run("missing reference is bad data", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		})
		_, err := c.InitiateVerification(authed(), "esign", InitiateRequest{})
		assert.Equal(t, CategoryBadData, CategoryOf(err))
	})
}

func TestVerificationStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/kyc/verifications/aadhaar/ref-9", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"completed","name":"Ramesh Kumar"}`))
	})
	resp, err := c.VerificationStatus(authed(), "aadhaar", "ref-9")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, "Ramesh Kumar", resp.Name)
}
