package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	config "github.com/goldkiwi/storefront/configs"
	"github.com/goldkiwi/storefront/internal/core/domain/verification"
	"github.com/goldkiwi/storefront/internal/core/ports"
	"github.com/sirupsen/logrus"
)

const maxErrorBody = 64 << 10

// Client implements ports.AuthAPI over the auth service's JSON endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *logrus.Logger
}

var _ ports.AuthAPI = (*Client)(nil)

// NewClient creates the auth service client. With cfg.CookieJar set the
// client keeps its own session across calls (single-user terminal use);
// otherwise credentials only travel via ForwardCookies.
func NewClient(cfg *config.AuthAPIConfig, logger *logrus.Logger) (*Client, error) {
	hc := &http.Client{Timeout: cfg.Timeout}
	if cfg.CookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		hc.Jar = jar
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
		logger:  logger,
	}, nil
}

// BaseURL returns the auth service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SeedCookies stores cookies for the auth service in the client's jar. It
// does nothing for a client without a jar.
func (c *Client) SeedCookies(cookies []*http.Cookie) error {
	if c.http.Jar == nil || len(cookies) == 0 {
		return nil
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid auth api url: %w", err)
	}
	c.http.Jar.SetCookies(u, cookies)
	return nil
}

func (c *Client) SendCode(ctx context.Context, req ports.SendCodeRequest) error {
	if req.Purpose == verification.PurposeEmailChange {
		return c.post(ctx, "/auth/me/send-email-change-code", map[string]string{"email": req.Email}, nil)
	}
	return c.post(ctx, "/auth/send-verification-code", req, nil)
}

func (c *Client) VerifyCode(ctx context.Context, req ports.VerifyCodeRequest) error {
	if req.Purpose == verification.PurposeEmailChange {
		return c.post(ctx, "/auth/me/verify-email-change-code", map[string]string{"email": req.Email, "code": req.Code}, nil)
	}
	return c.post(ctx, "/auth/verify-code", req, nil)
}

func (c *Client) Signup(ctx context.Context, req ports.SignupRequest) (*ports.Account, error) {
	var out ports.Account
	if err := c.post(ctx, "/auth/signup", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ResetPassword(ctx context.Context, req ports.ResetPasswordRequest) error {
	return c.post(ctx, "/auth/reset-password", req, nil)
}

func (c *Client) FindUsername(ctx context.Context, req ports.FindUsernameRequest) (string, error) {
	var out struct {
		Username string `json:"username"`
	}
	if err := c.post(ctx, "/auth/find-username", req, &out); err != nil {
		return "", err
	}
	return out.Username, nil
}

func (c *Client) UpdateProfile(ctx context.Context, req ports.UpdateProfileRequest) (*ports.Profile, error) {
	var out ports.Profile
	if err := c.do(ctx, http.MethodPatch, "/auth/me", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetProfile(ctx context.Context) (*ports.Profile, error) {
	var out ports.Profile
	if err := c.do(ctx, http.MethodGet, "/auth/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ping reports whether the auth service answers at all. Any HTTP response,
// including 4xx, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &ports.APIError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, ck := range forwardedCookies(ctx) {
		req.AddCookie(ck)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{"method": method, "path": path}).Warn("auth api request failed")
		return err
	}
	defer resp.Body.Close()

	if rec := recorderFrom(ctx); rec != nil {
		rec.add(resp.Cookies())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := ports.ParseAPIError(resp.StatusCode, data)
		c.logger.WithFields(logrus.Fields{
			"method": method,
			"path":   path,
			"status": resp.StatusCode,
		}).Debug("auth api returned error")
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
