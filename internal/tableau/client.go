// Package tableau fetches view data from the Tableau Server REST API.
package tableau

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"cyphr-server/internal/common/config"
	stderrors "cyphr-server/internal/common/errors"
	"cyphr-server/internal/common/httpclient"
	"cyphr-server/internal/common/logger"
)

type credentials struct {
	tokenName  string
	tokenValue string
	username   string
	password   string
}

// Client talks to one Tableau site. Sign-in is lazy: the first fetch
// authenticates, and a 401 mid-flight triggers one re-auth and retry.
type Client struct {
	baseURL    string
	apiVersion string
	contentURL string
	creds      credentials
	http       *httpclient.Client
	logger     logger.Logger

	mu        sync.Mutex
	authToken string
	siteID    string
}

func NewClient(cfg config.TableauConfig, log logger.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.ServerURL, "/"),
		apiVersion: cfg.APIVersion,
		contentURL: cfg.SiteID,
		creds: credentials{
			tokenName:  cfg.TokenName,
			tokenValue: cfg.TokenValue,
			username:   cfg.Username,
			password:   cfg.Password,
		},
		http:   httpclient.NewClient(timeout),
		logger: log.WithFields(map[string]interface{}{"component": "tableau"}),
	}
}

type signInRequest struct {
	Credentials map[string]interface{} `json:"credentials"`
}

type signInResponse struct {
	Credentials struct {
		Token string `json:"token"`
		Site  struct {
			ID string `json:"id"`
		} `json:"site"`
	} `json:"credentials"`
}

// SignIn authenticates against the site and caches the auth token. Personal
// access tokens win over username/password when both are configured.
func (c *Client) SignIn(ctx context.Context) error {
	payload := signInRequest{Credentials: map[string]interface{}{
		"site": map[string]string{"contentUrl": c.contentURL},
	}}

	switch {
	case c.creds.tokenName != "" && c.creds.tokenValue != "":
		payload.Credentials["personalAccessTokenName"] = c.creds.tokenName
		payload.Credentials["personalAccessTokenSecret"] = c.creds.tokenValue
	case c.creds.username != "" && c.creds.password != "":
		payload.Credentials["name"] = c.creds.username
		payload.Credentials["password"] = c.creds.password
	default:
		return stderrors.NewTableauAuthFailedError(fmt.Errorf("no credentials configured"))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return stderrors.NewTableauAuthFailedError(err)
	}

	url := fmt.Sprintf("%s/api/%s/auth/signin", c.baseURL, c.apiVersion)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return stderrors.NewTableauAuthFailedError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return stderrors.NewTableauAuthFailedError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stderrors.NewTableauAuthFailedError(fmt.Errorf("signin returned status %d", resp.StatusCode))
	}

	var signIn signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&signIn); err != nil {
		return stderrors.NewTableauAuthFailedError(err)
	}

	c.mu.Lock()
	c.authToken = signIn.Credentials.Token
	c.siteID = signIn.Credentials.Site.ID
	c.mu.Unlock()

	c.logger.Info("tableau sign-in succeeded", map[string]interface{}{
		"siteId": signIn.Credentials.Site.ID,
	})
	return nil
}

// FetchViewData returns the data behind one Tableau view as raw JSON. An
// expired token is refreshed and the fetch retried once.
func (c *Client) FetchViewData(ctx context.Context, viewID string) (json.RawMessage, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	data, status, err := c.fetchOnce(ctx, viewID)
	if err == nil && status == http.StatusOK {
		return data, nil
	}

	if status == http.StatusUnauthorized {
		c.logger.Warn("tableau token rejected, re-authenticating", map[string]interface{}{
			"viewId": viewID,
		})
		c.mu.Lock()
		c.authToken = ""
		c.mu.Unlock()

		if err := c.SignIn(ctx); err != nil {
			return nil, err
		}
		data, status, err = c.fetchOnce(ctx, viewID)
		if err == nil && status == http.StatusOK {
			return data, nil
		}
	}

	if err == nil {
		err = fmt.Errorf("view data returned status %d", status)
	}
	return nil, stderrors.NewTableauFetchFailedError(viewID, err)
}

func (c *Client) ensureAuthenticated(ctx context.Context) error {
	c.mu.Lock()
	token := c.authToken
	c.mu.Unlock()

	if token != "" {
		return nil
	}
	return c.SignIn(ctx)
}

func (c *Client) fetchOnce(ctx context.Context, viewID string) (json.RawMessage, int, error) {
	c.mu.Lock()
	token, siteID := c.authToken, c.siteID
	c.mu.Unlock()

	url := fmt.Sprintf("%s/api/%s/sites/%s/views/%s/data", c.baseURL, c.apiVersion, siteID, viewID)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("X-Tableau-Auth", token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return json.RawMessage(body), resp.StatusCode, nil
}
