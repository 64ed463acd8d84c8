package pvoutput

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/raterudder/zeverrelay/pkg/common"
	"github.com/raterudder/zeverrelay/pkg/config"
	"github.com/raterudder/zeverrelay/pkg/log"
	"github.com/raterudder/zeverrelay/pkg/types"
)

// DefaultURL is the base of the PVOutput r2 service.
const DefaultURL = "https://pvoutput.org/service/r2"

// ErrUnauthorized is returned when PVOutput rejects the API key or system id.
var ErrUnauthorized = errors.New("could not authenticate with pvoutput")

const (
	headerAPIKey   = "X-Pvoutput-Apikey"
	headerSystemID = "X-Pvoutput-SystemId"

	// index of the status interval in the getsystem response
	systemIntervalField = 15

	maxResponseBytes = 64 << 10
)

// Client talks to the PVOutput API for a single system.
type Client struct {
	baseURL    string
	apiKey     string
	systemID   string
	cumulative bool
	client     *http.Client

	cfg            *config.File
	policy         *common.RetryPolicy
	flagAPIKey     string
	flagSystemID   string
	flagURL        string
	flagCumulative bool
}

// Options configure a Client.
type Options struct {
	BaseURL  string
	APIKey   string
	SystemID string
	// Cumulative sends c1=1 so PVOutput treats v1 as energy since midnight.
	Cumulative bool
	Client     *http.Client
}

// New returns a Client for the given options.
func New(opts Options) (*Client, error) {
	c := &Client{}
	if err := c.apply(opts); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) apply(opts Options) error {
	if opts.APIKey == "" {
		return errors.New("pvoutput api key is not set")
	}
	if opts.SystemID == "" {
		return errors.New("pvoutput system id is not set")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultURL
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return fmt.Errorf("failed to parse pvoutput url (%s): %w", opts.BaseURL, err)
	}
	if opts.Client == nil {
		opts.Client = http.DefaultClient
	}
	c.baseURL = strings.TrimSuffix(opts.BaseURL, "/")
	c.apiKey = opts.APIKey
	c.systemID = opts.SystemID
	c.cumulative = opts.Cumulative
	c.client = opts.Client
	return nil
}

// SystemID returns the configured system id.
func (c *Client) SystemID() string {
	return c.systemID
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerSystemID, c.systemID)
	return req, nil
}

// GetSystem fetches the system name and status interval.
func (c *Client) GetSystem(ctx context.Context) (types.SystemInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "getsystem.jsp", nil)
	if err != nil {
		return types.SystemInfo{}, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return types.SystemInfo{}, fmt.Errorf("failed to get system: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return types.SystemInfo{}, fmt.Errorf("%w: %w", ErrUnauthorized, common.CheckResponse(resp))
	}
	if err := common.CheckResponse(resp); err != nil {
		return types.SystemInfo{}, fmt.Errorf("pvoutput returned error: %w", err)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return types.SystemInfo{}, fmt.Errorf("failed to read system: %w", err)
	}
	return parseSystem(string(b))
}

// parseSystem reads the first section of a getsystem response. The interval
// field carries a unit suffix which is stripped and read as minutes.
func parseSystem(body string) (types.SystemInfo, error) {
	section, _, _ := strings.Cut(strings.TrimSpace(body), ";")
	fields := strings.Split(section, ",")
	name := strings.TrimSpace(fields[0])
	if name == "" {
		return types.SystemInfo{}, fmt.Errorf("missing system name in response %q", body)
	}
	info := types.SystemInfo{Name: name}
	if len(fields) > systemIntervalField {
		raw := strings.TrimSpace(fields[systemIntervalField])
		digits := strings.TrimRightFunc(raw, func(r rune) bool {
			return r < '0' || r > '9'
		})
		if mins, err := strconv.Atoi(digits); err == nil && mins > 0 {
			info.Interval = time.Duration(mins) * time.Minute
		}
	}
	return info, nil
}

// AddStatus uploads a reading.
func (c *Client) AddStatus(ctx context.Context, r types.Reading) error {
	form := url.Values{}
	form.Set("d", r.Date)
	form.Set("t", r.Time)
	form.Set("v1", strconv.Itoa(r.EnergyTodayWh))
	form.Set("v2", strconv.Itoa(r.PowerWatts))
	if c.cumulative {
		form.Set("c1", "1")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "addstatus.jsp", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to add status: %w", err)
	}
	defer resp.Body.Close()
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %w", ErrUnauthorized, common.CheckResponse(resp))
	}
	if err := common.CheckResponse(resp); err != nil {
		return fmt.Errorf("pvoutput returned error: %w", err)
	}
	return nil
}

// Upload uploads a reading and reports whether it was accepted. Failures are
// logged.
func (c *Client) Upload(ctx context.Context, r types.Reading) bool {
	if err := c.AddStatus(ctx, r); err != nil {
		log.Ctx(ctx).WarnContext(
			ctx,
			"failed to upload to pvoutput",
			slog.String("date", r.Date),
			slog.String("time", r.Time),
			slog.String("kind", common.Classify(err).String()),
			slog.Any("error", err),
		)
		return false
	}
	log.Ctx(ctx).InfoContext(ctx, "data uploaded to pvoutput", slog.String("date", r.Date), slog.String("time", r.Time))
	return true
}
