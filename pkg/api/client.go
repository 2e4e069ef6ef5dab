package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/grovetools/cncctl/config"
	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/grovetools/cncctl/version"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// RequestIDHeader carries a per-request id the controller echoes in its logs.
const RequestIDHeader = "X-Request-ID"

// Client calls the controller's HTTP command API.
type Client struct {
	httpClient *http.Client
	logger     *logrus.Entry

	mu  sync.RWMutex
	cfg config.ControllerConfig
}

// New creates a Client for the configured controller.
func New(cfg config.ControllerConfig, logger *logrus.Entry) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
		cfg:        cfg,
	}
}

// SetHost points the client at another host, keeping port and paths.
func (c *Client) SetHost(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = c.cfg.WithHost(host)
}

// Controller returns the current controller settings.
func (c *Client) Controller() config.ControllerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

func (c *Client) apiURL(verb string) string {
	return c.Controller().APIURL() + "/" + strings.TrimLeft(verb, "/")
}

// Put issues PUT /api/<verb> with an optional JSON body.
func (c *Client) Put(ctx context.Context, verb string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode request body").
				WithDetail("command", verb)
		}
		reader = bytes.NewReader(data)
	}
	return c.do(ctx, http.MethodPut, verb, c.apiURL(verb), reader, "application/json", nil)
}

// Get issues GET /api/<verb> and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, verb string, out interface{}) error {
	return c.do(ctx, http.MethodGet, verb, c.apiURL(verb), nil, "", out)
}

// Delete issues DELETE /api/<verb>.
func (c *Client) Delete(ctx context.Context, verb string) error {
	return c.do(ctx, http.MethodDelete, verb, c.apiURL(verb), nil, "", nil)
}

// Plan retrieves the toolpath plan for a file. While the controller is still
// computing it, the result is {"progress": p}.
func (c *Client) Plan(ctx context.Context, filename string) (tree.Map, error) {
	var raw interface{}
	if err := c.Get(ctx, "path/"+url.PathEscape(filename), &raw); err != nil {
		return nil, err
	}
	m, ok := tree.MapFromAny(raw)
	if !ok {
		return nil, errors.New(errors.ErrCodeProtocolViolation, "toolpath response is not an object").
			WithDetail("file", filename)
	}
	return m, nil
}

// LoadConfig fetches the full device configuration.
func (c *Client) LoadConfig(ctx context.Context) (tree.Map, error) {
	var raw interface{}
	if err := c.Get(ctx, "config/load", &raw); err != nil {
		return nil, err
	}
	m, ok := tree.MapFromAny(raw)
	if !ok {
		return nil, errors.New(errors.ErrCodeProtocolViolation, "config/load response is not an object")
	}
	return m, nil
}

// SaveConfig persists a full device configuration.
func (c *Client) SaveConfig(ctx context.Context, cfg tree.Map) error {
	return c.Put(ctx, "config/save", cfg)
}

// ConfigTemplate fetches the configuration template describing every
// setting. It is served outside the API prefix.
func (c *Client) ConfigTemplate(ctx context.Context) (tree.Map, error) {
	var raw interface{}
	u := c.Controller().BaseURL() + "/config-template.json"
	if err := c.do(ctx, http.MethodGet, "config-template", u, nil, "", &raw); err != nil {
		return nil, err
	}
	m, ok := tree.MapFromAny(raw)
	if !ok {
		return nil, errors.New(errors.ErrCodeProtocolViolation, "config template is not an object")
	}
	return m, nil
}

// Upgrade asks the controller to download and install the latest firmware.
func (c *Client) Upgrade(ctx context.Context, password string) error {
	return c.Put(ctx, "upgrade", map[string]string{"password": password})
}

// UploadFirmware installs a firmware package.
func (c *Client) UploadFirmware(ctx context.Context, name string, r io.Reader, password string) error {
	fields := map[string]string{}
	if password != "" {
		fields["password"] = password
	}
	return c.upload(ctx, "firmware/update", "firmware", name, r, fields)
}

// UploadFile uploads a G-code program, replacing one of the same name.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) error {
	return c.upload(ctx, "file", "gcode", name, r, nil)
}

// DeleteFile removes one uploaded program.
func (c *Client) DeleteFile(ctx context.Context, name string) error {
	return c.Delete(ctx, "file/"+url.PathEscape(name))
}

// DeleteAllFiles removes every uploaded program.
func (c *Client) DeleteAllFiles(ctx context.Context) error {
	return c.Delete(ctx, "file")
}

func (c *Client) upload(ctx context.Context, verb, field, name string, r io.Reader, fields map[string]string) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode upload")
		}
	}
	part, err := w.CreateFormFile(field, name)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode upload")
	}
	if _, err := io.Copy(part, r); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to read upload").WithDetail("file", name)
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to encode upload")
	}

	return c.do(ctx, http.MethodPut, verb, c.apiURL(verb), &buf, w.FormDataContentType(), nil)
}

func (c *Client) do(ctx context.Context, method, verb, target string, body io.Reader, contentType string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to create request").WithDetail("command", verb)
	}
	if body != nil && contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", version.UserAgent())
	id := ulid.Make().String()
	req.Header.Set(RequestIDHeader, id)

	logger := c.logger.WithFields(logrus.Fields{"method": method, "command": verb, "request_id": id})
	logger.Debug("Sending request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return errors.Timeout(verb, c.httpClient.Timeout)
		}
		return errors.CommandFailed(verb, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		logger.WithField("status", resp.StatusCode).Warn("Command rejected")
		return errors.PermissionDenied(verb)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logger.WithField("status", resp.StatusCode).Warn("Command failed")
		return errors.CommandFailed(verb, resp.StatusCode, fmt.Errorf("%s", strings.TrimSpace(string(msg))))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrCodeProtocolViolation, "failed to decode response").
			WithDetail("command", verb)
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return stderrors.As(err, &t) && t.Timeout()
}
