// Package config loads and validates the router's startup configuration,
// in the ancestor proxy's style: plain env-var getters with typed defaults,
// assembled into one struct and validated once before anything else runs
// (spec §6, §9 "model config as a typed struct validated at startup").
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Ethan-GoldS/ao-sub000/internal/proxy"
	"github.com/Ethan-GoldS/ao-sub000/internal/routeerr"
)

// Role selects the route profile (spec §4.7).
type Role string

const (
	RoleCU Role = "cu"
	RoleMU Role = "mu"
)

// Strategy selects C5/C6 (proxy) vs C8 (redirect), spec §4.8/§6.
type Strategy string

const (
	StrategyProxy    Strategy = "proxy"
	StrategyRedirect Strategy = "redirect"
)

// TLSConfig controls whether the listener terminates TLS itself, and with
// which certificate. Unlike the ancestor proxy (whose Config had no TLS
// field despite cmd/server/tls.go reading one), this field is real and
// wired end-to-end by cmd/router.
type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// BailoutConfig bundles the surrogate URL, static overlays, and cache
// policy for the C3 Bailout Resolver (CU only).
type BailoutConfig struct {
	SurrogateURL  string
	ProcessToHost map[string][]string
	OwnerToHost   map[string][]string
	CacheSize     int
	CacheTTL      time.Duration
}

// Config is the fully validated, immutable startup configuration.
type Config struct {
	Role         Role
	Strategy     Strategy
	Hosts        []string
	ListenAddr   string
	Timeouts     proxy.Timeouts
	TotalTimeout time.Duration
	Bailout      BailoutConfig
	TLS          TLSConfig
	Queue        proxy.QueueConfig
}

const (
	defaultListen           = ":8080"
	defaultTotalTimeout     = 30 * time.Second
	defaultBailoutCacheSize = 4096
	defaultBailoutCacheTTL  = 5 * time.Minute
	defaultQueueEnqueueWait = 2 * time.Second
	defaultQueueWaitHeader  = false

	// Per-unit admission defaults (spec §6's role split): CU attempts are
	// few and heavy — compute execution plus a possible bailout round-trip
	// and multi-attempt failover — so a smaller concurrency cap and a
	// shallower queue avoid piling up long-running work. MU attempts are
	// many and light (state reads), so they can run at higher concurrency
	// with more room to queue behind it.
	defaultQueueMaxCU         = 500
	defaultQueueConcurrencyCU = 100
	defaultQueueMaxMU         = 2000
	defaultQueueConcurrencyMU = 400
)

// Load reads environment variables into a Config and validates it. Any
// failure here is a ConfigurationError (spec §7): it aborts boot, it is
// never recovered from at request time.
func Load() (*Config, error) {
	role := Role(strings.ToLower(getEnv("ROUTER_ROLE", "cu")))
	strategy := Strategy(strings.ToLower(getEnv("ROUTER_STRATEGY", "proxy")))

	hosts := parseList(os.Getenv("ROUTER_HOSTS"))

	timeouts := proxy.Timeouts{
		Connect: getEnvDuration("ROUTER_CONNECT_TIMEOUT", proxy.DefaultTimeouts().Connect),
		Socket:  getEnvDuration("ROUTER_SOCKET_TIMEOUT", proxy.DefaultTimeouts().Socket),
		Proxy:   getEnvDuration("ROUTER_PROXY_TIMEOUT", proxy.DefaultTimeouts().Proxy),
	}

	defaultQueueMax, defaultQueueConcurrency := defaultQueueMaxMU, defaultQueueConcurrencyMU
	if role == RoleCU {
		defaultQueueMax, defaultQueueConcurrency = defaultQueueMaxCU, defaultQueueConcurrencyCU
	}

	cfg := &Config{
		Role:         role,
		Strategy:     strategy,
		Hosts:        hosts,
		ListenAddr:   getEnv("ROUTER_LISTEN", defaultListen),
		Timeouts:     timeouts,
		TotalTimeout: getEnvDuration("ROUTER_TOTAL_TIMEOUT", defaultTotalTimeout),
		Bailout: BailoutConfig{
			SurrogateURL:  strings.TrimSpace(os.Getenv("ROUTER_SUR_URL")),
			ProcessToHost: parseOverlayMap(os.Getenv("ROUTER_PROCESS_TO_HOST")),
			OwnerToHost:   parseOverlayMap(os.Getenv("ROUTER_OWNER_TO_HOST")),
			CacheSize:     getEnvInt("ROUTER_BAILOUT_CACHE_SIZE", defaultBailoutCacheSize),
			CacheTTL:      getEnvDuration("ROUTER_BAILOUT_CACHE_TTL", defaultBailoutCacheTTL),
		},
		TLS: TLSConfig{
			Enabled:  getEnvBool("ROUTER_TLS_ENABLED", false),
			CertFile: getEnv("ROUTER_TLS_CERT", "certs/server.crt"),
			KeyFile:  getEnv("ROUTER_TLS_KEY", "certs/server.key"),
		},
		Queue: proxy.QueueConfig{
			Role:            string(role),
			MaxQueue:        getEnvInt("ROUTER_MAX_QUEUE", defaultQueueMax),
			MaxConcurrent:   getEnvInt("ROUTER_MAX_CONCURRENT", defaultQueueConcurrency),
			EnqueueTimeout:  getEnvDuration("ROUTER_ENQUEUE_TIMEOUT", defaultQueueEnqueueWait),
			QueueWaitHeader: getEnvBool("ROUTER_QUEUE_WAIT_HEADER", defaultQueueWaitHeader),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", routeerr.ConfigurationError, err)
	}
	return cfg, nil
}

// Validate rejects anything Load couldn't have produced safely: unknown
// role/strategy, an empty pool, nonsensical timeouts. Called by Load, but
// exported so tests can build a Config by hand and validate it.
func (c *Config) Validate() error {
	switch c.Role {
	case RoleCU, RoleMU:
	default:
		return fmt.Errorf("unknown role %q (must be %q or %q)", c.Role, RoleCU, RoleMU)
	}
	switch c.Strategy {
	case StrategyProxy, StrategyRedirect:
	default:
		return fmt.Errorf("unknown strategy %q (must be %q or %q)", c.Strategy, StrategyProxy, StrategyRedirect)
	}
	if len(c.Hosts) == 0 {
		return errors.New("ROUTER_HOSTS must list at least one origin")
	}
	if c.TotalTimeout <= 0 {
		return errors.New("ROUTER_TOTAL_TIMEOUT must be positive")
	}
	if c.Role == RoleMU && c.Bailout.SurrogateURL != "" {
		return errors.New("bailout surrogate is CU-only; ROUTER_SUR_URL must be empty for role=mu")
	}
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return errors.New("ROUTER_TLS_ENABLED requires both ROUTER_TLS_CERT and ROUTER_TLS_KEY")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// parseList splits a comma-separated env var into a trimmed, non-empty slice.
func parseList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseOverlayMap parses "key=host1|host2,key2=host3" into a map of slices,
// the shape used by ROUTER_PROCESS_TO_HOST / ROUTER_OWNER_TO_HOST.
func parseOverlayMap(v string) map[string][]string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	out := make(map[string][]string)
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		hosts := parseList(strings.ReplaceAll(kv[1], "|", ","))
		if key == "" || len(hosts) == 0 {
			continue
		}
		out[key] = hosts
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
