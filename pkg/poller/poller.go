package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/raterudder/zeverrelay/pkg/common"
	"github.com/raterudder/zeverrelay/pkg/log"
	"github.com/raterudder/zeverrelay/pkg/metrics"
	"github.com/raterudder/zeverrelay/pkg/storage"
	"github.com/raterudder/zeverrelay/pkg/types"
)

// Device fetches and parses the inverter status page.
type Device interface {
	FetchStatus(ctx context.Context) (string, error)
	Parse(raw string, now time.Time) (types.Reading, error)
}

// Uploader relays a reading and reports whether it was accepted.
type Uploader interface {
	Upload(ctx context.Context, reading types.Reading) bool
}

// Recorder persists a reading locally and reports whether it was written.
type Recorder interface {
	Record(ctx context.Context, reading types.Reading) bool
}

// Gate decides whether it's worth polling.
type Gate interface {
	IsDaylight(now time.Time) bool
	NextSunrise(now time.Time) time.Time
}

// State is where the poller is in its day.
type State int

const (
	StateAwaitingSunrise State = iota
	StatePolling
)

func (s State) String() string {
	switch s {
	case StateAwaitingSunrise:
		return "awaiting_sunrise"
	case StatePolling:
		return "polling"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time view of the poller.
type Status struct {
	State       State          `json:"state"`
	SystemID    string         `json:"systemID"`
	SystemName  string         `json:"systemName"`
	Interval    string         `json:"interval"`
	NextSunrise time.Time      `json:"nextSunrise,omitzero"`
	LastPoll    time.Time      `json:"lastPoll,omitzero"`
	LastError   string         `json:"lastError,omitempty"`
	LastReading *types.Reading `json:"lastReading,omitempty"`
	LastUpload  time.Time      `json:"lastUpload,omitzero"`
	UploadOK    bool           `json:"uploadOK"`
}

// Options are the dependencies of a Poller. Archive and Metrics are optional.
type Options struct {
	Device   Device
	Uploader Uploader
	Recorder Recorder
	Gate     Gate
	Archive  storage.Database
	Metrics  *metrics.Metrics

	SystemID   string
	SystemName string
	// Interval is the wait between polls while the sun is up.
	Interval time.Duration
	// IdleInterval is the wait between daylight checks overnight. It
	// defaults to Interval.
	IdleInterval time.Duration
}

// Poller polls the inverter while the sun is up and relays each reading.
// Polls never overlap.
type Poller struct {
	device   Device
	uploader Uploader
	recorder Recorder
	gate     Gate
	archive  storage.Database
	metrics  *metrics.Metrics

	systemID     string
	systemName   string
	interval     time.Duration
	idleInterval time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	status Status
}

// New returns a Poller.
func New(opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = opts.Interval
	}
	if opts.Archive == nil {
		opts.Archive = storage.Nop{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Poller{
		device:       opts.Device,
		uploader:     opts.Uploader,
		recorder:     opts.Recorder,
		gate:         opts.Gate,
		archive:      opts.Archive,
		metrics:      opts.Metrics,
		systemID:     opts.SystemID,
		systemName:   opts.SystemName,
		interval:     opts.Interval,
		idleInterval: opts.IdleInterval,
		now:          time.Now,
		sleep:        common.Sleep,
		status: Status{
			SystemID:   opts.SystemID,
			SystemName: opts.SystemName,
			Interval:   opts.Interval.String(),
		},
	}
}

// Status returns a snapshot of the poller.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	if s.LastReading != nil {
		r := *s.LastReading
		s.LastReading = &r
	}
	return s
}

func (p *Poller) update(fn func(s *Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.status)
}

// Run polls until ctx is cancelled, which is the only way it returns.
func (p *Poller) Run(ctx context.Context) error {
	var (
		state   State
		started bool
	)
	for {
		if ctx.Err() != nil {
			log.Ctx(ctx).InfoContext(ctx, "poller stopped")
			return nil
		}

		now := p.now()
		daylight := p.gate.IsDaylight(now)
		p.metrics.SetDaylight(daylight)

		var wait time.Duration
		if daylight {
			if !started || state != StatePolling {
				log.Ctx(ctx).InfoContext(ctx, "collecting data", slog.String("system", p.systemName), slog.Duration("interval", p.interval))
			}
			state = StatePolling
			p.update(func(s *Status) {
				s.State = state
				s.NextSunrise = time.Time{}
			})
			p.Poll(ctx)
			wait = p.interval
		} else {
			next := p.gate.NextSunrise(now)
			if !started || state != StateAwaitingSunrise {
				log.Ctx(ctx).InfoContext(ctx, "sun has set, resuming at sunrise", slog.Time("sunrise", next))
			}
			state = StateAwaitingSunrise
			p.update(func(s *Status) {
				s.State = state
				s.NextSunrise = next
			})
			wait = p.idleInterval
		}
		started = true

		log.Ctx(ctx).DebugContext(ctx, "sleeping", slog.String("state", state.String()), slog.Duration("wait", wait))
		if err := p.sleep(ctx, wait); err != nil {
			log.Ctx(ctx).InfoContext(ctx, "poller stopped")
			return nil
		}
	}
}

// Poll runs a single fetch, parse, record and upload cycle. It reports whether
// a reading was produced.
func (p *Poller) Poll(ctx context.Context) bool {
	raw, err := p.device.FetchStatus(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		kind := common.Classify(err)
		log.Ctx(ctx).WarnContext(ctx, fetchFailureMessage(kind), slog.Any("error", err))
		p.metrics.ObservePoll(kind.String())
		p.update(func(s *Status) {
			s.LastPoll = p.now()
			s.LastError = err.Error()
		})
		return false
	}

	reading, err := p.device.Parse(raw, p.now())
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to parse inverter data", slog.Any("error", err))
		p.metrics.ObservePoll("malformed")
		p.update(func(s *Status) {
			s.LastPoll = p.now()
			s.LastError = err.Error()
		})
		return false
	}
	p.metrics.ObservePoll("ok")
	p.metrics.ObserveReading(reading)

	log.Ctx(ctx).InfoContext(
		ctx,
		"got inverter reading",
		slog.String("date", reading.Date),
		slog.String("time", reading.Time),
		slog.String("status", reading.Status),
		slog.Int("powerW", reading.PowerWatts),
		slog.Int("energyTodayWh", reading.EnergyTodayWh),
	)
	if reading.IsError() {
		log.Ctx(ctx).WarnContext(ctx, "inverter reported error status")
	}

	if !p.recorder.Record(ctx, reading) {
		p.metrics.ObserveRecordFailure()
	}
	if err := p.archive.InsertReading(ctx, p.systemID, reading); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to archive reading", slog.Any("error", err))
	}

	ok := p.uploader.Upload(ctx, reading)
	p.metrics.ObserveUpload(ok)

	p.update(func(s *Status) {
		s.LastPoll = reading.Timestamp
		s.LastError = ""
		s.LastReading = &reading
		s.LastUpload = p.now()
		s.UploadOK = ok
	})
	return true
}

func fetchFailureMessage(kind common.ErrorKind) string {
	switch kind {
	case common.ErrorKindHTTP:
		return "http error"
	case common.ErrorKindConnection:
		return "connection error"
	case common.ErrorKindTimeout:
		return "connection timed out"
	default:
		return "unexpected error"
	}
}
