// Package unifi implements the HTTPS client for UniFi-family controllers.
// The API is undocumented; endpoint layout depends on the controller flavour,
// which is probed at connect time.
package unifi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	scanerrors "github.com/unifiscan/unifi-scanner/internal/errors"
	"github.com/unifiscan/unifi-scanner/internal/models"
	"github.com/unifiscan/unifi-scanner/internal/retry"
	"github.com/unifiscan/unifi-scanner/pkg/tlsutil"
)

// detection probe order. The first responding port decides the flavour.
var probePorts = []struct {
	port int
	kind ControllerType
}{
	{443, ControllerUDMLike},
	{8443, ControllerSelfHosted},
	{11443, ControllerOSServer},
}

const probeTimeout = 5 * time.Second

// ClientConfig holds configuration for the controller client.
type ClientConfig struct {
	Host           string
	Port           int // 0 = auto-detect
	Username       string
	Password       string
	VerifySSL      bool
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	Retry          retry.Config
}

// Client maintains one authenticated HTTPS session to a controller.
type Client struct {
	host       string
	baseURL    string
	kind       ControllerType
	httpClient *http.Client
	retryCfg   retry.Config
	username   string
	password   string
	site       string
	csrfToken  string
}

// NewClient creates a controller client. No network I/O happens until
// DetectDeviceType or Authenticate is called.
func NewClient(cfg ClientConfig) (*Client, error) {
	host := strings.TrimSpace(cfg.Host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		return nil, fmt.Errorf("controller host is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, fmt.Errorf("controller credentials are required")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	httpClient := tlsutil.CreateHTTPClientWithTimeouts(cfg.VerifySSL, cfg.ConnectTimeout, cfg.RequestTimeout)
	httpClient.Jar = jar

	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = retry.DefaultConfig()
	}

	c := &Client{
		host:       host,
		kind:       ControllerUnknown,
		httpClient: httpClient,
		retryCfg:   retryCfg,
		username:   cfg.Username,
		password:   cfg.Password,
		site:       "default",
	}

	if cfg.Port != 0 {
		c.baseURL = fmt.Sprintf("https://%s:%d", host, cfg.Port)
		c.kind = kindForPort(cfg.Port)
	}

	return c, nil
}

func kindForPort(port int) ControllerType {
	for _, probe := range probePorts {
		if probe.port == port {
			return probe.kind
		}
	}
	// Nonstandard port: assume the classic self-hosted layout
	return ControllerSelfHosted
}

// ControllerType returns the detected controller flavour.
func (c *Client) ControllerType() ControllerType {
	return c.kind
}

// SetSite selects the site used by site-scoped operations.
func (c *Client) SetSite(site string) {
	if site != "" {
		c.site = site
	}
}

// Site returns the currently selected site.
func (c *Client) Site() string {
	return c.site
}

// DetectDeviceType probes the controller ports in fixed order and fixes the
// endpoint layout for the session. A configured explicit port skips probing.
func (c *Client) DetectDeviceType(ctx context.Context) (ControllerType, error) {
	if c.kind != ControllerUnknown {
		return c.kind, nil
	}

	var lastErr error
	for _, probe := range probePorts {
		url := fmt.Sprintf("https://%s:%d/status", c.host, probe.port)

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
		if err != nil {
			cancel()
			return ControllerUnknown, err
		}
		resp, err := c.httpClient.Do(req)
		cancel()
		if err != nil {
			lastErr = err
			log.Debug().Int("port", probe.port).Err(err).Msg("Controller probe failed")
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		// Any HTTP response means something is listening and speaking TLS;
		// the status endpoint is unauthenticated on every flavour.
		c.kind = probe.kind
		c.baseURL = fmt.Sprintf("https://%s:%d", c.host, probe.port)
		log.Info().
			Str("controller", c.host).
			Int("port", probe.port).
			Str("type", string(probe.kind)).
			Msg("Detected controller type")
		return c.kind, nil
	}

	return ControllerUnknown, scanerrors.WrapConnection("detect_device_type", c.host,
		fmt.Errorf("no controller responded on ports 443, 8443, 11443: %w", lastErr))
}

// loginPath returns the authentication endpoint for the detected flavour.
func (c *Client) loginPath() string {
	if c.kind == ControllerSelfHosted {
		return "/api/login"
	}
	return "/api/auth/login"
}

// apiPrefix returns the network-application path prefix for the flavour.
func (c *Client) apiPrefix() string {
	if c.kind == ControllerSelfHosted {
		return "/api"
	}
	return "/proxy/network/api"
}

// Authenticate performs a fresh login. Called at the start of every run and
// once transparently after a mid-run 401.
func (c *Client) Authenticate(ctx context.Context) error {
	if c.kind == ControllerUnknown {
		if _, err := c.DetectDeviceType(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.loginPath(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	log.Debug().Str("controller", c.host).Str("user", c.username).Msg("Authenticating to controller")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return scanerrors.WrapConnection("authenticate", c.host, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))

	if resp.StatusCode != http.StatusOK {
		scanErr := scanerrors.New(scanerrors.ErrorTypeAuth, "authenticate", c.host,
			fmt.Errorf("login rejected (status %d)", resp.StatusCode)).WithStatusCode(resp.StatusCode)
		if hint := authHint(body); hint != "" {
			scanErr = scanErr.WithHint(hint)
		}
		return scanErr
	}

	// UniFi OS issues a CSRF token required on subsequent POSTs
	if token := resp.Header.Get("X-CSRF-Token"); token != "" {
		c.csrfToken = token
	}

	log.Debug().Str("controller", c.host).Msg("Authentication succeeded")
	return nil
}

// authHint inspects a login error body for MFA/SSO indications. Only local
// accounts can drive the API.
func authHint(body []byte) string {
	lower := strings.ToLower(string(body))
	if strings.Contains(lower, "2fa") || strings.Contains(lower, "mfa") || strings.Contains(lower, "two-factor") {
		return "The account appears to require multi-factor authentication. Create a dedicated local account without MFA for the scanner."
	}
	if strings.Contains(lower, "sso") || strings.Contains(lower, "ubiquiti account") || strings.Contains(lower, "cloud") {
		return "The account appears to be a Ubiquiti SSO account. The scanner requires a local controller account."
	}
	return ""
}

// Logout ends the session. Best effort: failures are logged, not propagated.
func (c *Client) Logout(ctx context.Context) {
	path := "/api/auth/logout"
	if c.kind == ControllerSelfHosted {
		path = "/api/logout"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Logout request build failed")
		return
	}
	if c.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", c.csrfToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("Logout failed")
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

// do executes one API request with the session's retry discipline:
// exponential backoff on connect/timeout/5xx, Retry-After on 429, exactly one
// transparent reauthentication on 401, no retry on other 4xx.
func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	attempts := c.retryCfg.MaxAttempts
	if attempts <= 0 {
		attempts = retry.DefaultConfig().MaxAttempts
	}

	reauthed := false
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		body, status, retryAfter, err := c.doOnce(ctx, method, path)
		switch {
		case err != nil:
			// transport-level failure: retryable
			lastErr = scanerrors.WrapConnection(method+" "+path, c.host, err)

		case status == http.StatusUnauthorized:
			if reauthed {
				return nil, scanerrors.WrapAuth(method+" "+path, c.host,
					fmt.Errorf("request rejected again after reauthentication")).WithStatusCode(status)
			}
			reauthed = true
			log.Debug().Str("path", path).Msg("Session expired, reauthenticating")
			if err := c.Authenticate(ctx); err != nil {
				return nil, err
			}
			// retry immediately, does not consume a backoff slot
			attempt--
			continue

		case status == http.StatusTooManyRequests:
			lastErr = scanerrors.WrapAPI(method+" "+path, c.host,
				fmt.Errorf("rate limited"), status)
			delay := c.retryCfg.NextDelay(attempt)
			if hinted := parseRetryAfter(retryAfter); hinted > 0 {
				delay = hinted
			}
			if !sleepCtx(ctx, delay) {
				return nil, lastErr
			}
			continue

		case status >= 500:
			lastErr = scanerrors.WrapAPI(method+" "+path, c.host,
				fmt.Errorf("server error: %s", truncate(body, 200)), status)

		case status >= 400:
			return nil, scanerrors.WrapAPI(method+" "+path, c.host,
				fmt.Errorf("request failed: %s", truncate(body, 200)), status)

		default:
			return body, nil
		}

		if attempt < attempts-1 {
			delay := c.retryCfg.NextDelay(attempt)
			log.Debug().
				Str("path", path).
				Int("attempt", attempt+1).
				Dur("backoff", delay).
				Msg("Retrying controller request")
			if !sleepCtx(ctx, delay) {
				break
			}
		}
	}

	return nil, lastErr
}

// doOnce performs a single request without retry handling. A nil error with a
// non-2xx status means the transport worked and the caller decides.
func (c *Client) doOnce(ctx context.Context, method, path string) (body []byte, status int, retryAfter string, err error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, "", err
	}
	req.Header.Set("Accept", "application/json")
	if method != http.MethodGet && c.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", c.csrfToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", err
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, 32*1024*1024))
	if err != nil {
		return nil, 0, "", err
	}
	return body, resp.StatusCode, resp.Header.Get("Retry-After"), nil
}

// parseRetryAfter interprets a Retry-After header as delay seconds.
func parseRetryAfter(value string) time.Duration {
	s := strings.TrimSpace(value)
	if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 300 {
		return time.Duration(n) * time.Second
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func truncate(b []byte, n int) string {
	s := string(b)
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

// decodeEnvelope validates the meta.rc wrapper and returns the data array.
func (c *Client) decodeEnvelope(op string, body []byte) ([]json.RawMessage, error) {
	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, scanerrors.New(scanerrors.ErrorTypeParse, op, c.host,
			fmt.Errorf("malformed response envelope: %w", err))
	}
	if envelope.Meta.RC != "" && envelope.Meta.RC != "ok" {
		return nil, scanerrors.WrapAPI(op, c.host,
			fmt.Errorf("controller reported rc=%q msg=%q", envelope.Meta.RC, envelope.Meta.Msg), 0)
	}
	var items []json.RawMessage
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &items); err != nil {
			return nil, scanerrors.New(scanerrors.ErrorTypeParse, op, c.host,
				fmt.Errorf("malformed data array: %w", err))
		}
	}
	return items, nil
}

// ListSites returns the sites visible to the account.
func (c *Client) ListSites(ctx context.Context) ([]Site, error) {
	path := c.apiPrefix() + "/self/sites"
	body, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	items, err := c.decodeEnvelope("list_sites", body)
	if err != nil {
		return nil, err
	}

	sites := make([]Site, 0, len(items))
	for _, item := range items {
		var site Site
		if err := json.Unmarshal(item, &site); err != nil {
			log.Warn().Err(err).Msg("Skipping malformed site record")
			continue
		}
		sites = append(sites, site)
	}
	return sites, nil
}

// GetEvents returns recent events for the site. The controller bounds the
// window server-side by count/time; timestamp filtering is client-side.
func (c *Client) GetEvents(ctx context.Context, site string) ([]models.Event, int, error) {
	path := fmt.Sprintf("%s/s/%s/stat/event", c.apiPrefix(), site)
	body, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, 0, err
	}
	items, err := c.decodeEnvelope("get_events", body)
	if err != nil {
		return nil, 0, err
	}

	events := make([]models.Event, 0, len(items))
	parseFailures := 0
	for _, item := range items {
		var evt rawEvent
		if err := json.Unmarshal(item, &evt); err != nil || evt.Key == "" {
			parseFailures++
			continue
		}
		evt.raw = item
		events = append(events, evt.toModel())
	}
	if parseFailures > 0 {
		log.Warn().Int("count", parseFailures).Str("site", site).Msg("Skipped malformed event records")
	}
	return events, parseFailures, nil
}

// GetIPSEvents returns recent IPS/IDS events for the site.
func (c *Client) GetIPSEvents(ctx context.Context, site string) ([]models.IPSEvent, int, error) {
	path := fmt.Sprintf("%s/s/%s/stat/ips/event", c.apiPrefix(), site)
	body, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, 0, err
	}
	items, err := c.decodeEnvelope("get_ips_events", body)
	if err != nil {
		return nil, 0, err
	}

	events := make([]models.IPSEvent, 0, len(items))
	parseFailures := 0
	for _, item := range items {
		var evt rawIPSEvent
		if err := json.Unmarshal(item, &evt); err != nil || evt.Signature == "" {
			parseFailures++
			continue
		}
		events = append(events, evt.toModel())
	}
	if parseFailures > 0 {
		log.Warn().Int("count", parseFailures).Str("site", site).Msg("Skipped malformed IPS event records")
	}
	return events, parseFailures, nil
}

// GetDevices returns health stats for the site's managed devices.
func (c *Client) GetDevices(ctx context.Context, site string) ([]models.DeviceStats, error) {
	path := fmt.Sprintf("%s/s/%s/stat/device", c.apiPrefix(), site)
	body, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	items, err := c.decodeEnvelope("get_devices", body)
	if err != nil {
		return nil, err
	}

	devices := make([]models.DeviceStats, 0, len(items))
	for _, item := range items {
		var dev rawDevice
		if err := json.Unmarshal(item, &dev); err != nil || dev.MAC == "" {
			log.Debug().Msg("Skipping malformed device record")
			continue
		}
		devices = append(devices, dev.toModel())
	}
	return devices, nil
}

// GetAlarms returns unarchived alarms for the site.
func (c *Client) GetAlarms(ctx context.Context, site string) ([]Alarm, error) {
	path := fmt.Sprintf("%s/s/%s/stat/alarm", c.apiPrefix(), site)
	body, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	items, err := c.decodeEnvelope("get_alarms", body)
	if err != nil {
		return nil, err
	}

	alarms := make([]Alarm, 0, len(items))
	for _, item := range items {
		var alarm Alarm
		if err := json.Unmarshal(item, &alarm); err != nil {
			continue
		}
		if !alarm.Archived {
			alarms = append(alarms, alarm)
		}
	}
	return alarms, nil
}
