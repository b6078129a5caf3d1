// Package client is a Go client for the Stelgent HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"stelgent-web/pkg/types"
)

const (
	// DefaultBaseURL is the address of a locally running server.
	DefaultBaseURL = "http://localhost:8005"
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 60 * time.Second
)

// ErrNoCredential is returned by calls that need a wallet key when none is set.
var ErrNoCredential = errors.New("no wallet public key configured")

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client talks to a Stelgent server on behalf of one wallet.
type Client struct {
	baseURL    string
	publicKey  string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// New creates a client. publicKey may be empty for unauthenticated calls.
func New(baseURL, publicKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		publicKey:  publicKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// PublicKey returns the wallet key sent with authenticated calls.
func (c *Client) PublicKey() string {
	return c.publicKey
}

// SetPublicKey changes the wallet key.
func (c *Client) SetPublicKey(key string) {
	c.publicKey = key
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, authed bool) (*http.Request, error) {
	if authed && c.publicKey == "" {
		return nil, ErrNoCredential
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+c.publicKey)
	}
	return req, nil
}

// send executes req and returns the body of a 2xx response.
func (c *Client) send(req *http.Request) ([]byte, http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, resp.Header, nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

// call sends an optional JSON body and decodes the JSON response into out.
func (c *Client) call(ctx context.Context, method, path string, in, out any, authed bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body, authed)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	data, _, err := c.send(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// raw performs an authenticated GET and returns the body unparsed.
func (c *Client) raw(ctx context.Context, path string) ([]byte, http.Header, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, nil, err
	}
	return c.send(req)
}

func projectPath(projectID string, rest ...string) string {
	p := "/api/projects/" + url.PathEscape(projectID)
	for _, r := range rest {
		p += "/" + url.PathEscape(r)
	}
	return p
}

// Health reports the server health payload.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.call(ctx, http.MethodGet, "/health", nil, &out, false); err != nil {
		return nil, err
	}
	return out, nil
}

// Connect registers or looks up the wallet and adopts it as the client's key.
func (c *Client) Connect(ctx context.Context, publicKey string) (*types.User, error) {
	var out struct {
		Token string     `json:"token"`
		User  types.User `json:"user"`
	}
	in := map[string]string{"public_key": publicKey}
	if err := c.call(ctx, http.MethodPost, "/api/auth/wallet/connect", in, &out, false); err != nil {
		return nil, err
	}
	c.publicKey = out.Token
	return &out.User, nil
}

// Verify checks that publicKey is a well-formed wallet key.
func (c *Client) Verify(ctx context.Context, publicKey, signature, message string) error {
	in := map[string]string{"public_key": publicKey, "signature": signature, "message": message}
	return c.call(ctx, http.MethodPost, "/api/auth/wallet/verify", in, nil, false)
}

// Me returns the authenticated user.
func (c *Client) Me(ctx context.Context) (*types.User, error) {
	var out struct {
		User types.User `json:"user"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/auth/me", nil, &out, true); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// SetOpenAIKey stores the user's OpenAI key; nil clears it.
func (c *Client) SetOpenAIKey(ctx context.Context, key *string) (*types.User, error) {
	var out struct {
		User types.User `json:"user"`
	}
	in := map[string]*string{"openai_api_key": key}
	if err := c.call(ctx, http.MethodPut, "/api/settings/openai", in, &out, true); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// CreateProject creates a project named name.
func (c *Client) CreateProject(ctx context.Context, name string) (*types.Project, error) {
	var out struct {
		Project types.Project `json:"project"`
	}
	if err := c.call(ctx, http.MethodPost, "/api/projects", map[string]string{"name": name}, &out, true); err != nil {
		return nil, err
	}
	return &out.Project, nil
}

// ListProjects lists the user's projects, newest first.
func (c *Client) ListProjects(ctx context.Context) ([]types.Project, error) {
	var out struct {
		Projects []types.Project `json:"projects"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/projects", nil, &out, true); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, projectID string) (*types.Project, error) {
	var out struct {
		Project types.Project `json:"project"`
	}
	if err := c.call(ctx, http.MethodGet, projectPath(projectID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out.Project, nil
}

// DeleteProject removes a project and its files.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.call(ctx, http.MethodDelete, projectPath(projectID), nil, nil, true)
}

// ListFiles returns every file record of a project.
func (c *Client) ListFiles(ctx context.Context, projectID string) ([]types.FileRecord, error) {
	var out struct {
		Files []types.FileRecord `json:"files"`
	}
	if err := c.call(ctx, http.MethodGet, projectPath(projectID, "files"), nil, &out, true); err != nil {
		return nil, err
	}
	return out.Files, nil
}

// FileInput is the body of a file create request.
type FileInput struct {
	Path    string         `json:"path"`
	Type    types.FileType `json:"type,omitempty"`
	Content string         `json:"content"`
}

// FilePatch is the body of a file update request. Nil fields are left unchanged.
type FilePatch struct {
	Path    *string `json:"path,omitempty"`
	Content *string `json:"content,omitempty"`
}

// CreateFile creates a file or folder.
func (c *Client) CreateFile(ctx context.Context, projectID string, in FileInput) (*types.FileRecord, error) {
	var out struct {
		File types.FileRecord `json:"file"`
	}
	if err := c.call(ctx, http.MethodPost, projectPath(projectID, "files"), in, &out, true); err != nil {
		return nil, err
	}
	return &out.File, nil
}

// UpdateFile renames a record or replaces a file's content.
func (c *Client) UpdateFile(ctx context.Context, projectID, fileID string, patch FilePatch) (*types.FileRecord, error) {
	var out struct {
		File types.FileRecord `json:"file"`
	}
	if err := c.call(ctx, http.MethodPut, projectPath(projectID, "files", fileID), patch, &out, true); err != nil {
		return nil, err
	}
	return &out.File, nil
}

// DeleteFile removes a record and returns how many records were deleted.
func (c *Client) DeleteFile(ctx context.Context, projectID, fileID string) (int, error) {
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := c.call(ctx, http.MethodDelete, projectPath(projectID, "files", fileID), nil, &out, true); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// Tree returns the project's file tree as JSON-decoded nodes.
func (c *Client) Tree(ctx context.Context, projectID string) (*types.TreeNode, error) {
	var out struct {
		Tree types.TreeNode `json:"tree"`
	}
	if err := c.call(ctx, http.MethodGet, projectPath(projectID, "tree"), nil, &out, true); err != nil {
		return nil, err
	}
	return &out.Tree, nil
}

// TreeText returns the box-drawing rendering of the project tree.
func (c *Client) TreeText(ctx context.Context, projectID string) (string, error) {
	data, _, err := c.raw(ctx, projectPath(projectID, "tree")+"?format=text")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Preview returns the assembled preview document.
func (c *Client) Preview(ctx context.Context, projectID string, minify bool) (string, error) {
	path := projectPath(projectID, "preview")
	if minify {
		path += "?minify=true"
	}
	data, _, err := c.raw(ctx, path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Archive downloads the project as a ZIP and returns it with the suggested filename.
func (c *Client) Archive(ctx context.Context, projectID string) ([]byte, string, error) {
	data, header, err := c.raw(ctx, projectPath(projectID, "archive"))
	if err != nil {
		return nil, "", err
	}
	name := "project.zip"
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return data, name, nil
}

// ImportZip uploads a ZIP archive into the project.
func (c *Client) ImportZip(ctx context.Context, projectID, filename string, archive io.Reader) (*types.ImportResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("codeZip", filename)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, archive); err != nil {
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, projectPath(projectID, "import"), &body, true)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	data, _, err := c.send(req)
	if err != nil {
		return nil, err
	}
	var out types.ImportResult
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// ImportGithub imports a public GitHub repository. token may be empty.
func (c *Client) ImportGithub(ctx context.Context, projectID, repoURL, token string) (*types.ImportResult, error) {
	var out types.ImportResult
	in := map[string]string{"url": repoURL, "token": token}
	if err := c.call(ctx, http.MethodPost, projectPath(projectID, "import", "github"), in, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}
