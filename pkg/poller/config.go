package poller

import (
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/zeverrelay/pkg/config"
)

// DefaultInterval is used when neither the flags, the config file nor PVOutput
// say how often to poll.
const DefaultInterval = 5 * time.Minute

// Intervals resolves the polling interval from its sources.
type Intervals struct {
	cfg          *config.File
	flagInterval time.Duration
	flagIdle     time.Duration
}

// Configured registers the interval flags.
func Configured(cfg *config.File) *Intervals {
	i := &Intervals{cfg: cfg}
	interval := lflag.Duration("request-interval", 0, "Time between inverter polls, overrides the PVOutput status interval")
	idle := lflag.Duration("idle-interval", 0, "Time between daylight checks overnight (default the request interval)")

	lflag.Do(func() {
		i.flagInterval = *interval
		i.flagIdle = *idle
	})

	return i
}

// Resolve picks the interval in order of the flag, the config file's
// request_interval, the interval reported by PVOutput, the config file's
// default_request_interval and finally DefaultInterval. It also returns where
// the interval came from.
func (i *Intervals) Resolve(remote time.Duration) (interval, idle time.Duration, source string) {
	cfg := i.cfg
	if cfg == nil {
		cfg = &config.File{}
	}
	switch {
	case i.flagInterval > 0:
		interval, source = i.flagInterval, "flag"
	case cfg.RequestInterval > 0:
		interval, source = cfg.RequestInterval, "config"
	case remote > 0:
		interval, source = remote, "pvoutput"
	case cfg.DefaultRequestInterval > 0:
		interval, source = cfg.DefaultRequestInterval, "config default"
	default:
		interval, source = DefaultInterval, "default"
	}
	idle = interval
	if i.flagIdle > 0 {
		idle = i.flagIdle
	}
	return interval, idle, source
}
