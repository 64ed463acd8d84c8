package pvoutput

import (
	"github.com/levenlabs/go-lflag"

	"github.com/raterudder/zeverrelay/pkg/common"
	"github.com/raterudder/zeverrelay/pkg/config"
)

// Configured registers the PVOutput flags. The returned Client is usable once
// Init has succeeded.
func Configured(cfg *config.File, policy *common.RetryPolicy) *Client {
	c := &Client{cfg: cfg, policy: policy}
	apiKey := lflag.String("pvoutput-api-key", "", "PVOutput API key")
	systemID := lflag.String("pvoutput-system-id", "", "PVOutput system id")
	baseURL := lflag.String("pvoutput-url", "", "Base URL of the PVOutput service (default \""+DefaultURL+"\")")
	cumulative := lflag.Bool("pvoutput-cumulative", true, "Send c1=1 so energy is treated as cumulative for the day")

	lflag.Do(func() {
		c.flagAPIKey = *apiKey
		c.flagSystemID = *systemID
		c.flagURL = *baseURL
		c.flagCumulative = *cumulative
	})

	return c
}

// Init resolves the flags against the config file and validates the
// credentials.
func (c *Client) Init() error {
	file := config.PVOutput{}
	if c.cfg != nil {
		file = c.cfg.PVOutput
	}
	opts := Options{
		BaseURL:    firstNonEmpty(c.flagURL, file.URL),
		APIKey:     firstNonEmpty(c.flagAPIKey, file.APIKey),
		SystemID:   firstNonEmpty(c.flagSystemID, file.SystemID),
		// the flag defaults to on so either source can turn it off
		Cumulative: c.flagCumulative && (file.Cumulative == nil || *file.Cumulative),
	}
	if c.policy != nil {
		opts.Client = common.HTTPClient(*c.policy)
	}
	if err := c.apply(opts); err != nil {
		return config.Fatalf("%v", err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
