package remote

import (
	"errors"
	"sync"
)

var (
	defaultMu     sync.Mutex
	defaultCfg    *Config
	defaultClient *Client
)

// SetDefaultConfig stores the configuration the process-wide default client
// is built from. It discards any previously built default client so the
// next Default call rebuilds with the new configuration.
func SetDefaultConfig(cfg Config) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	c := cfg
	defaultCfg = &c
	defaultClient = nil
}

// Default returns the process-wide client, building it on first use from
// the configuration given to [SetDefaultConfig]. Construction happens at
// most once per configuration; concurrent callers share one client.
func Default() (*Client, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultClient != nil {
		return defaultClient, nil
	}
	if defaultCfg == nil {
		return nil, errors.New("remote default client not configured")
	}

	client, err := NewClient(*defaultCfg)
	if err != nil {
		return nil, err
	}
	defaultClient = client
	return defaultClient, nil
}

// SetDefault installs an already-built client as the process-wide default.
func SetDefault(c *Client) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultClient = c
}

// ResetDefault clears the process-wide client and its configuration. Test
// hook; production code configures the default once at startup.
func ResetDefault() {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCfg = nil
	defaultClient = nil
}
