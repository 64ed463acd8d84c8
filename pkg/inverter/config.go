package inverter

import (
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/zeverrelay/pkg/common"
	"github.com/raterudder/zeverrelay/pkg/config"
)

// Configured registers the inverter flags. The returned Zever is usable once
// Init has succeeded.
func Configured(cfg *config.File, policy *common.RetryPolicy) *Zever {
	z := &Zever{cfg: cfg, policy: policy}
	ip := lflag.String("inverter-ip", "", "IP address of the inverter")
	statusPath := lflag.String("inverter-status-path", "", "Path of the inverter status page (default \""+DefaultStatusPath+"\")")
	var offsets *Offsets
	lflag.JSON(&offsets, "inverter-line-offsets", offsets, "JSON object of zero-based status page lines, e.g. {\"status\":7,\"power\":10,\"energy\":11} for older firmware")

	lflag.Do(func() {
		z.flagIP = *ip
		z.flagStatusPath = *statusPath
		z.flagOffsets = offsets
	})

	return z
}

// Init resolves the flags against the config file. Readings are stamped in
// loc.
func (z *Zever) Init(loc *time.Location) error {
	cfg := z.cfg
	if cfg == nil {
		cfg = &config.File{}
	}

	ip := z.flagIP
	if ip == "" {
		ip = cfg.InverterIP
	}
	if ip == "" {
		return config.Fatalf("inverter ip address is not set")
	}
	path := z.flagStatusPath
	if path == "" {
		path = cfg.InverterStatusPath
	}

	z.offsets = DefaultOffsets
	switch {
	case z.flagOffsets != nil:
		z.offsets = *z.flagOffsets
	case cfg.InverterLineOffsets != nil:
		z.offsets = Offsets(*cfg.InverterLineOffsets)
	}

	z.loc = loc
	if z.policy != nil {
		z.client = common.HTTPClient(*z.policy)
	}
	if err := z.configure(ip, path); err != nil {
		return config.Fatalf("%v", err)
	}
	return nil
}
