package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/Dan9191/lostcard-service/internal/config"
	"github.com/Dan9191/lostcard-service/internal/directory"
	"github.com/beevik/etree"
	"github.com/sirupsen/logrus"
)

const (
	redIDField   = "SD_LOOKUP_WRK_DESCR254"
	emailFieldID = "SD_LOOKUP_WRK_SD_PERS_SDSUID"
)

var (
	// ErrNoSession means no saved session cookies exist
	ErrNoSession = errors.New("no saved lookup session")
	// ErrInvalidSession means the saved session could not be read
	ErrInvalidSession = errors.New("saved lookup session is unreadable")
	// ErrSessionExpired means the lookup system answered with its login page
	ErrSessionExpired = errors.New("lookup session expired")
)

var loginPaths = []string{
	"//input[@id='userid']",
	"//input[@name='userid']",
	"//input[@type='password']",
}

// savedCookie is the on-disk form written by the login helper
type savedCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// Client performs live identifier lookups against the institutional directory
// using a saved browser session
type Client struct {
	url         string
	cookiesFile string
	client      *http.Client
	log         *logrus.Logger
}

// NewClient initializes a new lookup client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url:         cfg.LookupURL,
		cookiesFile: cfg.LookupCookiesFile,
		client: &http.Client{
			Timeout: cfg.LookupTimeout,
		},
		log: log,
	}
}

// loadCookies reads the saved session
func (c *Client) loadCookies() ([]*http.Cookie, error) {
	raw, err := os.ReadFile(c.cookiesFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	var saved []savedCookie
	if err := json.Unmarshal(raw, &saved); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if len(saved) == 0 {
		return nil, fmt.Errorf("%w: no cookies", ErrInvalidSession)
	}

	cookies := make([]*http.Cookie, 0, len(saved))
	for _, s := range saved {
		cookies = append(cookies, &http.Cookie{Name: s.Name, Value: s.Value, Domain: s.Domain, Path: s.Path})
	}
	return cookies, nil
}

// fetchPage requests the lookup page for redID
func (c *Client) fetchPage(ctx context.Context, redID string, cookies []*http.Cookie) ([]byte, error) {
	endpoint, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid lookup url: %w", err)
	}
	q := endpoint.Query()
	q.Set(redIDField, redID)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// parsePage detects the login page or extracts the owner's email
func parsePage(body []byte) (string, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if _, err := doc.ReadFrom(bytes.NewReader(body)); err != nil {
		return "", fmt.Errorf("failed to parse lookup page: %w", err)
	}

	for _, path := range loginPaths {
		if doc.FindElement(path) != nil {
			return "", ErrSessionExpired
		}
	}

	el := doc.FindElement("//*[@id='" + emailFieldID + "']")
	if el == nil {
		return "", directory.ErrNotFound
	}
	email := strings.TrimSpace(el.Text())
	if email == "" {
		return "", directory.ErrNotFound
	}
	return email, nil
}

// Lookup returns the email for redID or one of the session errors
func (c *Client) Lookup(ctx context.Context, redID string) (string, error) {
	if c.url == "" {
		return "", directory.ErrNotFound
	}

	cookies, err := c.loadCookies()
	if err != nil {
		c.logSessionProblem(err)
		return "", err
	}

	body, err := c.fetchPage(ctx, redID, cookies)
	if err != nil {
		return "", err
	}

	email, err := parsePage(body)
	if errors.Is(err, ErrSessionExpired) {
		c.logSessionProblem(err)
		return "", err
	}
	if err != nil {
		return "", err
	}

	c.log.WithField("red_id", redID).Info("Live directory lookup found owner email")
	return email, nil
}

func (c *Client) logSessionProblem(err error) {
	c.log.WithError(err).WithField("cookies_file", c.cookiesFile).
		Error("Live directory lookup unavailable; refresh the saved session to re-enable it")
}

var _ directory.Directory = (*Client)(nil)
