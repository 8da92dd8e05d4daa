package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"go-mangadex-upload/internal/models"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const MangaDexApiBaseUrl = "https://api.mangadex.org"

// ImageFile is one multipart part of an image batch. Key is the stable page
// index the server echoes back as originalFileName.
type ImageFile struct {
	Key         string
	FileName    string
	ContentType string
	Data        []byte
}

// Client talks to the platform REST API. Each method makes exactly one
// request; retrying is left to RetryPolicy.
type Client struct {
	BaseURL    string
	HttpClient *http.Client
	limiter    *rate.Limiter

	mu           sync.RWMutex
	sessionToken string
}

// NewClient creates a new API client. A positive ApiDelayMs takes precedence
// over RequestsPerSecond for pacing.
func NewClient(httpClient *http.Client, cfg models.Config) *Client {
	if httpClient == nil {
		timeout := time.Duration(cfg.ApiClientTimeoutSec) * time.Second
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(cfg.ApiUrl, "/")
	if baseURL == "" {
		baseURL = MangaDexApiBaseUrl
	}

	var limit rate.Limit
	switch {
	case cfg.ApiDelayMs > 0:
		limit = rate.Every(time.Duration(cfg.ApiDelayMs) * time.Millisecond)
	case cfg.RequestsPerSecond > 0:
		limit = rate.Limit(cfg.RequestsPerSecond)
	default:
		limit = rate.Inf
	}
	log.Debugf("NewClient called, base url %s, request limit %v/s", baseURL, limit)

	return &Client{
		BaseURL:    baseURL,
		HttpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

// SetSessionToken sets the bearer token used by authenticated requests.
func (c *Client) SetSessionToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionToken = token
}

// --- Auth ---

// Login exchanges username and password for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (models.Credential, error) {
	var resp models.TokenResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", models.LoginRequest{Username: username, Password: password}, false, &resp)
	if err != nil {
		return models.Credential{}, err
	}
	return resp.Token, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (models.Credential, error) {
	var resp models.TokenResponse
	err := c.doJSON(ctx, http.MethodPost, "/auth/refresh", models.RefreshRequest{Token: refreshToken}, false, &resp)
	if err != nil {
		return models.Credential{}, err
	}
	if resp.Token.Refresh == "" {
		resp.Token.Refresh = refreshToken
	}
	return resp.Token, nil
}

// CheckAuth asks the platform whether the current bearer token is valid.
func (c *Client) CheckAuth(ctx context.Context) (bool, error) {
	var resp models.AuthCheckResponse
	if err := c.doJSON(ctx, http.MethodGet, "/auth/check", nil, true, &resp); err != nil {
		return false, err
	}
	return resp.IsAuthenticated, nil
}

// --- Upload sessions ---

// GetUploadSession returns the account's open draft. A missing draft is an
// *APIError of KindNotFound.
func (c *Client) GetUploadSession(ctx context.Context) (models.UploadSession, error) {
	var resp models.UploadSessionResponse
	if err := c.doJSON(ctx, http.MethodGet, "/upload", nil, true, &resp); err != nil {
		return models.UploadSession{}, err
	}
	return resp.Data, nil
}

// BeginUploadSession opens a draft for seriesID attributed to groupIDs.
func (c *Client) BeginUploadSession(ctx context.Context, seriesID string, groupIDs []string) (models.UploadSession, error) {
	if groupIDs == nil {
		groupIDs = []string{}
	}
	var resp models.UploadSessionResponse
	body := models.BeginUploadRequest{Manga: seriesID, Groups: groupIDs}
	if err := c.doJSON(ctx, http.MethodPost, "/upload/begin", body, true, &resp); err != nil {
		return models.UploadSession{}, err
	}
	if resp.Data.ID == "" {
		return models.UploadSession{}, fmt.Errorf("%w: begin returned no session id", ErrDecode)
	}
	return resp.Data, nil
}

// DeleteUploadSession discards a draft and everything uploaded to it.
func (c *Client) DeleteUploadSession(ctx context.Context, sessionID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/upload/"+sessionID, nil, true, nil)
}

// UploadImages posts one batch of pages. A 200 response can still carry
// per-image errors; the caller reconciles Data against what it sent.
func (c *Client) UploadImages(ctx context.Context, sessionID string, files []ImageFile) (models.ImageUploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(f.Key), escapeQuotes(f.FileName)))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return models.ImageUploadResponse{}, fmt.Errorf("error creating multipart part for %s: %w", f.FileName, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return models.ImageUploadResponse{}, fmt.Errorf("error writing multipart part for %s: %w", f.FileName, err)
		}
	}
	if err := mw.Close(); err != nil {
		return models.ImageUploadResponse{}, fmt.Errorf("error closing multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload/"+sessionID, &buf, true)
	if err != nil {
		return models.ImageUploadResponse{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp models.ImageUploadResponse
	if err := c.send(req, &resp); err != nil {
		return models.ImageUploadResponse{}, err
	}
	return resp, nil
}

// CommitUploadSession finalizes the draft into a chapter.
func (c *Client) CommitUploadSession(ctx context.Context, sessionID string, commit models.CommitRequest) (models.CommitResponse, error) {
	if commit.PageOrder == nil {
		commit.PageOrder = []string{}
	}
	var resp models.CommitResponse
	if err := c.doJSON(ctx, http.MethodPost, "/upload/"+sessionID+"/commit", commit, true, &resp); err != nil {
		return models.CommitResponse{}, err
	}
	return resp, nil
}

// --- plumbing ---

func (c *Client) doJSON(ctx context.Context, method, path string, in any, authed bool, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("error marshalling request for %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := c.newRequest(ctx, method, path, body, authed)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, authed bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("error creating request for %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if authed {
		c.mu.RLock()
		token := c.sessionToken
		c.mu.RUnlock()
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.URL.Path, err)
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	log.WithFields(log.Fields{
		"method":         req.Method,
		"path":           req.URL.Path,
		"status":         resp.StatusCode,
		"request_id":     resp.Header.Get("X-Request-Id"),
		"correlation_id": resp.Header.Get("X-Correlation-Id"),
	}).Debug("API response")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading body of %s %s: %w", ErrTransport, req.Method, req.URL.Path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(req, resp.StatusCode, body)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		log.Debugf("Response body causing unmarshal error: %s", string(body))
		return fmt.Errorf("%w: %s %s: %w", ErrDecode, req.Method, req.URL.Path, err)
	}
	return nil
}

func newAPIError(req *http.Request, status int, body []byte) *APIError {
	apiErr := &APIError{
		Method: req.Method,
		Path:   req.URL.Path,
		Status: status,
		Kind:   KindForStatus(status),
	}
	var errBody models.ApiErrorBody
	if len(body) > 0 && json.Unmarshal(body, &errBody) == nil {
		apiErr.Errors = errBody.Errors
	}
	return apiErr
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
