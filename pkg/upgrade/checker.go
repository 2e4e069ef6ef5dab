package upgrade

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/version"
	"github.com/sirupsen/logrus"
)

// Checker asks the release server for the latest firmware version.
type Checker struct {
	url        string
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewChecker creates a Checker for the latest-version URL.
func NewChecker(latestURL string, timeout time.Duration, logger *logrus.Entry) *Checker {
	return &Checker{
		url:        latestURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Latest returns the latest published version for a controller. hid is the
// controller's hardware id, sent so the server can stage rollouts.
func (c *Checker) Latest(ctx context.Context, hid string) (string, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid upgrade url").WithDetail("url", c.url)
	}
	q := u.Query()
	q.Set("hid", hid)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInvalidInput, "failed to create request")
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeTransport, "failed to reach release server")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.CommandFailed("check upgrade", resp.StatusCode,
			fmt.Errorf("%s", strings.TrimSpace(string(body))))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeTransport, "failed to read latest version")
	}

	latest := strings.TrimSpace(string(body))
	c.logger.WithField("latest", latest).Debug("Fetched latest version")
	return latest, nil
}
