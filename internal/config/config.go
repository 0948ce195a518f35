package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration. It is built once in main and
// injected into every client and handler; nothing reads the environment
// after Load returns.
type Config struct {
	Port string

	PagerDutyHost string
	PagerDutyKey  string

	HipChatHost  string
	HipChatToken string

	// MonitorRoom receives the on-call audit notifications.
	MonitorRoom string
	// MonitoredEPs is the allow-list of escalation policy names the audit
	// pass reports on.
	MonitoredEPs []string

	HTTPTimeout time.Duration
	Debug       bool
}

// defaultMonitoredEPs is the team allow-list used when MONITORED_EPS is not
// set.
var defaultMonitoredEPs = []string{
	"Amp",
	"Data Engineering",
	"DataScience",
	"Ingestion",
	"Operations",
	"OpsDirect",
	"ops-delayed",
	"Radioedit",
	"Radioedit-delayed",
	"Web Escalation",
	"Test",
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		PagerDutyHost: os.Getenv("PD_API_HOST"),
		PagerDutyKey:  os.Getenv("PD_API_KEY"),
		HipChatHost:   os.Getenv("HIPCHAT_API_HOST"),
		HipChatToken:  os.Getenv("HIPCHAT_API_TOKEN"),
		MonitorRoom:   getEnv("MONITOR_ROOM", "DevOps"),
		Debug:         getEnvBool("DEBUG", false),
	}

	if cfg.PagerDutyHost == "" || cfg.PagerDutyKey == "" {
		return nil, fmt.Errorf("PD_API_HOST and PD_API_KEY must be set")
	}
	if cfg.HipChatHost == "" || cfg.HipChatToken == "" {
		return nil, fmt.Errorf("HIPCHAT_API_HOST and HIPCHAT_API_TOKEN must be set")
	}

	if eps := os.Getenv("MONITORED_EPS"); eps != "" {
		for _, name := range strings.Split(eps, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.MonitoredEPs = append(cfg.MonitoredEPs, name)
			}
		}
	} else {
		cfg.MonitoredEPs = append(cfg.MonitoredEPs, defaultMonitoredEPs...)
	}

	seconds := 10
	if raw := os.Getenv("HTTP_TIMEOUT_SECONDS"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT_SECONDS: %q", raw)
		}
		seconds = parsed
	}
	cfg.HTTPTimeout = time.Duration(seconds) * time.Second

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
