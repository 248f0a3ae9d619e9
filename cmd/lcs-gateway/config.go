package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	listenAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	requestTimeout  time.Duration
	pushBuffer      int
	pushPolicy      string
	agentsFile      string
	mdnsEnable      bool
	mdnsName        string

	defaultAgentID   string
	defaultAgentHost string
	defaultAgentPort int
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := flag.String("listen", ":8080", "HTTP listen address (REST + WebSocket push)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	requestTimeout := flag.Duration("request-timeout", 5*time.Second, "Per-request deadline for an Agent send")
	pushBuffer := flag.Int("push-buffer", 32, "Per-subscriber push event buffer size")
	pushPolicy := flag.String("push-policy", "drop", "Push backpressure policy: drop|kick")
	agentsFile := flag.String("agents-file", "", "Optional YAML file seeding the agent registry at startup")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS advertisement of this gateway")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default lcs-gateway-<hostname>)")
	defaultAgentID := flag.String("agent-id", "", "Id for an auto-registered default agent (requires -agent-host)")
	defaultAgentHost := flag.String("agent-host", "", "Host for an auto-registered default agent")
	defaultAgentPort := flag.Int("agent-port", 0, "Port for an auto-registered default agent")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.requestTimeout = *requestTimeout
	cfg.pushBuffer = *pushBuffer
	cfg.pushPolicy = *pushPolicy
	cfg.agentsFile = *agentsFile
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.defaultAgentID = *defaultAgentID
	cfg.defaultAgentHost = *defaultAgentHost
	cfg.defaultAgentPort = *defaultAgentPort

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.pushPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid push-policy: %s", c.pushPolicy)
	}
	if c.pushBuffer <= 0 {
		return fmt.Errorf("push-buffer must be > 0 (got %d)", c.pushBuffer)
	}
	if c.requestTimeout <= 0 {
		return fmt.Errorf("request-timeout must be > 0")
	}
	if (c.defaultAgentHost != "" || c.defaultAgentPort != 0) && c.defaultAgentID == "" {
		return fmt.Errorf("agent-id is required when agent-host/agent-port are set")
	}
	if c.defaultAgentID != "" && c.defaultAgentHost == "" {
		return fmt.Errorf("agent-host is required when agent-id is set")
	}
	return nil
}

// applyEnvOverrides maps LCS_GATEWAY_* and LCS_HOST/LCS_PORT environment
// variables onto cfg unless the corresponding flag was explicitly set.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["listen"]; !ok {
		if v, ok := get("PORT"); ok && v != "" {
			c.listenAddr = ":" + v
		}
		if v, ok := get("LCS_GATEWAY_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("LCS_GATEWAY_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("LCS_GATEWAY_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("LCS_GATEWAY_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("LCS_GATEWAY_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid LCS_GATEWAY_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	if _, ok := set["request-timeout"]; !ok {
		if v, ok := get("LCS_GATEWAY_REQUEST_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.requestTimeout = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid LCS_GATEWAY_REQUEST_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["agents-file"]; !ok {
		if v, ok := get("LCS_GATEWAY_AGENTS_FILE"); ok && v != "" {
			c.agentsFile = v
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("LCS_GATEWAY_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("LCS_GATEWAY_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["agent-id"]; !ok {
		if v, ok := get("LCS_AGENT_ID"); ok && v != "" {
			c.defaultAgentID = v
		}
	}
	if _, ok := set["agent-host"]; !ok {
		if v, ok := get("LCS_HOST"); ok && v != "" {
			c.defaultAgentHost = v
		}
	}
	if _, ok := set["agent-port"]; !ok {
		if v, ok := get("LCS_PORT"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.defaultAgentPort = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid LCS_PORT: %w", err)
			}
		}
	}
	return firstErr
}
