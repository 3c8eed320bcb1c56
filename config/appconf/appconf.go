// Package appconf contains app related configurations
package appconf

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"tasksched/config"
	devconf "tasksched/config/environments/development"
	prodconf "tasksched/config/environments/production"

	"github.com/goccy/go-yaml"
)

var (
	appconf config.AppConfiger

	fileMu     sync.RWMutex
	fileValues map[string]string
)

// LoadFile overlays values from a YAML file. Keys are the lower-cased
// environment variable names (db_host, poll_interval, ...). Environment
// variables still take priority over the file.
func LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}

	fileMu.Lock()
	fileValues = values
	fileMu.Unlock()
	return nil
}

// ResetFile drops values loaded by LoadFile.
func ResetFile() {
	fileMu.Lock()
	fileValues = nil
	fileMu.Unlock()
}

func lookup(key string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	fileMu.RLock()
	defer fileMu.RUnlock()
	return strings.TrimSpace(fileValues[key])
}

func stringOr(key, def string) string {
	if v := lookup(key); v != "" {
		return v
	}
	return def
}

func boolOr(key string, def bool) bool {
	switch strings.ToLower(lookup(key)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return def
}

func intOr(key string, def int) int {
	v, err := strconv.Atoi(lookup(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func durationOr(key string, def, lo, hi time.Duration) time.Duration {
	raw := lookup(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	if d < lo {
		return lo
	}
	if hi > 0 && d > hi {
		return hi
	}
	return d
}

func DBDialect() string {
	return stringOr("DB_DIALECT", appconf.GetDBDialect())
}

func DBURL() string {
	return stringOr("DB_URL", appconf.GetDBURL())
}

func DBHost() string {
	return stringOr("DB_HOST", "localhost")
}

func DBPort() string {
	return stringOr("DB_PORT", "5432")
}

func DBName() string {
	return stringOr("DB_NAME", "tasks")
}

func DBUser() string {
	return stringOr("DB_USER", "postgres")
}

func DBPassword() string {
	return lookup("DB_PASSWORD")
}

func SSHHost() string {
	return lookup("SSH_HOST")
}

func SSHPort() int {
	return intOr("SSH_PORT", 22)
}

func SSHUser() string {
	return lookup("SSH_USER")
}

func SSHPassword() string {
	return lookup("SSH_PASSWORD")
}

func SSHKeyPath() string {
	return lookup("SSH_KEY_PATH")
}

func SSHKnownHosts() string {
	return lookup("SSH_KNOWN_HOSTS")
}

func SSHConnectTimeout() time.Duration {
	return durationOr("SSH_CONNECT_TIMEOUT", 10*time.Second, time.Second, 5*time.Minute)
}

func LocalMode() bool {
	return boolOr("LOCAL_MODE", appconf.GetLocalMode())
}

func PollInterval() time.Duration {
	return durationOr("POLL_INTERVAL", 5*time.Second, time.Second, time.Hour)
}

func FlushInterval() time.Duration {
	return durationOr("FLUSH_INTERVAL", 5*time.Second, 100*time.Millisecond, time.Hour)
}

// CommandTimeout of zero means commands run without a deadline.
func CommandTimeout() time.Duration {
	return durationOr("COMMAND_TIMEOUT", 0, 0, 0)
}

// MaxConcurrent of zero means no admission limit.
func MaxConcurrent() int {
	return intOr("MAX_CONCURRENT", 0)
}

func LogLevel() string {
	return stringOr("LOG_LEVEL", "info")
}

// LogFile, when set, receives JSON logs in addition to stderr.
func LogFile() string {
	return lookup("LOG_FILE")
}

func HTTPAddr() string {
	return lookup("TASKSCHED_HTTP_ADDR")
}

func ConfigPath() string {
	return lookup("TASKSCHED_CONFIG")
}

func init() {
	env := os.Getenv("APP_ENV")

	switch env {
	case "development":
		appconf = devconf.New()
	default:
		appconf = prodconf.New()
	}
}
