package inverter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raterudder/zeverrelay/pkg/common"
	"github.com/raterudder/zeverrelay/pkg/config"
	"github.com/raterudder/zeverrelay/pkg/log"
	"github.com/raterudder/zeverrelay/pkg/types"
)

// DefaultStatusPath is the page served by Zeverlution inverters.
const DefaultStatusPath = "home.cgi"

// maxStatusBytes caps how much of the status page is read.
const maxStatusBytes = 64 << 10

// Zever reads the status page of a Zeverlution inverter.
type Zever struct {
	statusURL string
	offsets   Offsets
	loc       *time.Location
	client    *http.Client

	cfg            *config.File
	policy         *common.RetryPolicy
	flagIP         string
	flagStatusPath string
	flagOffsets    *Offsets
}

// New returns a client for the inverter at ip. A nil loc stamps readings in
// UTC.
func New(ip, statusPath string, offsets Offsets, loc *time.Location, client *http.Client) (*Zever, error) {
	z := &Zever{
		offsets: offsets,
		loc:     loc,
		client:  client,
	}
	if err := z.configure(ip, statusPath); err != nil {
		return nil, err
	}
	return z, nil
}

func (z *Zever) configure(ip, statusPath string) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return fmt.Errorf("inverter ip address is not set")
	}
	if statusPath == "" {
		statusPath = DefaultStatusPath
	}
	if err := z.offsets.validate(); err != nil {
		return err
	}
	u, err := url.Parse("http://" + ip + "/" + strings.TrimPrefix(statusPath, "/"))
	if err != nil {
		return fmt.Errorf("invalid inverter address %q: %w", ip, err)
	}
	z.statusURL = u.String()
	if z.loc == nil {
		z.loc = time.UTC
	}
	if z.client == nil {
		z.client = http.DefaultClient
	}
	return nil
}

// URL returns the status page URL.
func (z *Zever) URL() string {
	return z.statusURL
}

// FetchStatus downloads the raw status page.
func (z *Zever) FetchStatus(ctx context.Context) (string, error) {
	log.Ctx(ctx).DebugContext(ctx, "grabbing data from inverter", slog.String("url", z.statusURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, z.statusURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := z.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch inverter status: %w", err)
	}
	defer resp.Body.Close()

	if err := common.CheckResponse(resp); err != nil {
		return "", fmt.Errorf("inverter returned error: %w", err)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read inverter status: %w", err)
	}
	return string(b), nil
}

// Parse turns a raw status page into a reading stamped at now.
func (z *Zever) Parse(raw string, now time.Time) (types.Reading, error) {
	return Parse(raw, now, z.loc, z.offsets)
}
