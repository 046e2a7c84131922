package tableau

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyphr-server/internal/common/config"
	stderrors "cyphr-server/internal/common/errors"
	"cyphr-server/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func testConfig(serverURL string) config.TableauConfig {
	return config.TableauConfig{
		ServerURL:  serverURL,
		APIVersion: "3.19",
		SiteID:     "marketing",
		TokenName:  "extension-token",
		TokenValue: "secret-value",
		Timeout:    5000,
	}
}

func signInHandler(t *testing.T, token string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		creds := payload["credentials"].(map[string]interface{})
		assert.Equal(t, "extension-token", creds["personalAccessTokenName"])
		assert.Equal(t, "secret-value", creds["personalAccessTokenSecret"])
		site := creds["site"].(map[string]interface{})
		assert.Equal(t, "marketing", site["contentUrl"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"credentials":{"token":"` + token + `","site":{"id":"site-guid"}}}`))
	}
}

// ==========================
// Sign-In
// ==========================

func TestSignIn_PersonalAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/3.19/auth/signin", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		signInHandler(t, "tok-1")(w, r)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), logger.NewTestLogger(t))
	require.NoError(t, client.SignIn(context.Background()))
	assert.Equal(t, "tok-1", client.authToken)
	assert.Equal(t, "site-guid", client.siteID)
}

func TestSignIn_UsernamePasswordFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		creds := payload["credentials"].(map[string]interface{})
		assert.Equal(t, "analyst", creds["name"])
		assert.Equal(t, "hunter2", creds["password"])
		w.Write([]byte(`{"credentials":{"token":"tok-2","site":{"id":"site-guid"}}}`))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.TokenName = ""
	cfg.TokenValue = ""
	cfg.Username = "analyst"
	cfg.Password = "hunter2"

	client := NewClient(cfg, logger.NewTestLogger(t))
	require.NoError(t, client.SignIn(context.Background()))
	assert.Equal(t, "tok-2", client.authToken)
}

func TestSignIn_NoCredentials(t *testing.T) {
	cfg := testConfig("http://unused")
	cfg.TokenName = ""
	cfg.TokenValue = ""

	client := NewClient(cfg, logger.NewTestLogger(t))
	err := client.SignIn(context.Background())
	require.Error(t, err)

	se, ok := stderrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeTableauAuthFailed, se.Code)
}

func TestSignIn_ServerRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), logger.NewTestLogger(t))
	err := client.SignIn(context.Background())
	require.Error(t, err)

	se, _ := stderrors.AsStandardError(err)
	assert.Equal(t, stderrors.ErrCodeTableauAuthFailed, se.Code)
}

// ==========================
// View Data
// ==========================

func TestFetchViewData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/3.19/auth/signin":
			signInHandler(t, "tok-1")(w, r)
		case "/api/3.19/sites/site-guid/views/view-7/data":
			assert.Equal(t, "tok-1", r.Header.Get("X-Tableau-Auth"))
			w.Write([]byte(`{"worksheets":[{"name":"Sales"}]}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), logger.NewTestLogger(t))
	data, err := client.FetchViewData(context.Background(), "view-7")
	require.NoError(t, err)
	assert.JSONEq(t, `{"worksheets":[{"name":"Sales"}]}`, string(data))
}

func TestFetchViewData_ReauthenticatesOn401(t *testing.T) {
	signIns := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/3.19/auth/signin":
			signIns++
			token := "stale"
			if signIns > 1 {
				token = "fresh"
			}
			signInHandler(t, token)(w, r)
		case "/api/3.19/sites/site-guid/views/view-7/data":
			if r.Header.Get("X-Tableau-Auth") != "fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"rows":[]}`))
		}
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), logger.NewTestLogger(t))
	data, err := client.FetchViewData(context.Background(), "view-7")
	require.NoError(t, err)
	assert.Equal(t, 2, signIns)
	assert.JSONEq(t, `{"rows":[]}`, string(data))
}

func TestFetchViewData_FailureAfterRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/3.19/auth/signin" {
			signInHandler(t, "tok")(w, r)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), logger.NewTestLogger(t))
	_, err := client.FetchViewData(context.Background(), "view-7")
	require.Error(t, err)

	se, ok := stderrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, stderrors.ErrCodeTableauFetchFailed, se.Code)
	assert.True(t, se.Retryable)
}

func TestFetchViewData_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/3.19/auth/signin" {
			signInHandler(t, "tok")(w, r)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL), logger.NewTestLogger(t))
	_, err := client.FetchViewData(context.Background(), "view-7")
	require.Error(t, err)

	se, _ := stderrors.AsStandardError(err)
	assert.Equal(t, stderrors.ErrCodeTableauFetchFailed, se.Code)
}
