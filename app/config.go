package app

import (
	"errors"
	"sync"
	"time"

	"tasksched/internal/cmdexec"
	"tasksched/internal/dbconn"

	log "github.com/sirupsen/logrus"
)

// Config is resolved once at startup and handed to every component.
type Config struct {
	mu sync.Mutex

	DBDialect  string
	DBURL      string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string

	SSH       cmdexec.RemoteConfig
	LocalMode bool

	PollInterval   time.Duration
	FlushInterval  time.Duration
	CommandTimeout time.Duration
	MaxConcurrent  int

	LogLevel string
	LogFile  string
	HTTPAddr string
}

// NewConfig returns defaults for embedding the scheduler in-process: a
// sqlite file next to the binary and the local executor. The CLI starts
// from the environment instead, where postgres and SSH are the defaults.
func NewConfig() *Config {
	return &Config{
		DBDialect:     dbconn.DialectSQLite,
		DBURL:         "file:tasksched.db",
		LocalMode:     true,
		PollInterval:  5 * time.Second,
		FlushInterval: 5 * time.Second,
		LogLevel:      "info",
	}
}

// WithDBURL sets a full DSN, overriding host, port and credentials.
func (c *Config) WithDBURL(url string) *Config {
	c.mu.Lock()
	c.DBURL = url
	c.mu.Unlock()
	return c
}

func (c *Config) WithDBDialect(dialect string) *Config {
	c.mu.Lock()
	c.DBDialect = dialect
	c.mu.Unlock()
	return c
}

func (c *Config) WithLocalMode(local bool) *Config {
	c.mu.Lock()
	c.LocalMode = local
	c.mu.Unlock()
	return c
}

func (c *Config) WithPollInterval(d time.Duration) *Config {
	c.mu.Lock()
	c.PollInterval = d
	c.mu.Unlock()
	return c
}

func (c *Config) WithHTTPAddr(addr string) *Config {
	c.mu.Lock()
	c.HTTPAddr = addr
	c.mu.Unlock()
	return c
}

// Validate reports settings the scheduler cannot start with.
func (c *Config) Validate() error {
	if !c.LocalMode {
		if c.SSH.Host == "" {
			return errors.New("SSH_HOST is required unless LOCAL_MODE is set")
		}
		if c.SSH.User == "" {
			return errors.New("SSH_USER is required unless LOCAL_MODE is set")
		}
		if c.SSH.Password == "" && c.SSH.KeyPath == "" {
			return errors.New("SSH_PASSWORD or SSH_KEY_PATH is required unless LOCAL_MODE is set")
		}
	}
	if c.MaxConcurrent < 0 {
		return errors.New("MAX_CONCURRENT must not be negative")
	}
	return nil
}

func (c *Config) DBOptions() []dbconn.DBOpts {
	return []dbconn.DBOpts{
		dbconn.WithDialect(c.DBDialect),
		dbconn.WithURL(c.DBURL),
		dbconn.WithHost(c.DBHost, c.DBPort),
		dbconn.WithDatabase(c.DBName),
		dbconn.WithCredentials(c.DBUser, c.DBPassword),
	}
}

// Executor picks the local shell or the SSH session.
func (c *Config) Executor(logger *log.Entry) cmdexec.Executor {
	if c.LocalMode {
		return cmdexec.NewLocal()
	}
	return cmdexec.NewRemote(c.SSH, logger)
}
