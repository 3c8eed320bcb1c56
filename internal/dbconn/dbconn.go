// Package dbconn opens the task store connection for the configured
// dialect and applies pool settings.
package dbconn

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"tasksched/domain/task"

	"github.com/glebarez/sqlite"
	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
	DialectSQLite   = "sqlite"
)

type DBConf struct {
	Dialect     string
	URL         string
	Host        string
	Port        string
	Name        string
	User        string
	Password    string
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
	LogLevel    logger.LogLevel
}

type DBOpts func(*DBConf)

func NewConf() *DBConf {
	return &DBConf{
		Dialect:     DialectPostgres,
		Host:        "localhost",
		Port:        "5432",
		Name:        "tasks",
		User:        "postgres",
		MaxIdle:     25,
		MaxOpen:     25,
		MaxLifetime: 300 * time.Second,
		LogLevel:    logger.Silent,
	}
}

func WithDialect(dialect string) DBOpts {
	return func(d *DBConf) {
		d.Dialect = dialect
	}
}

// WithURL sets a complete DSN, overriding host/port/name/credentials.
func WithURL(url string) DBOpts {
	return func(d *DBConf) {
		d.URL = url
	}
}

func WithHost(host, port string) DBOpts {
	return func(d *DBConf) {
		d.Host = host
		d.Port = port
	}
}

func WithDatabase(name string) DBOpts {
	return func(d *DBConf) {
		d.Name = name
	}
}

func WithCredentials(user, password string) DBOpts {
	return func(d *DBConf) {
		d.User = user
		d.Password = password
	}
}

func WithMaxIdle(idle int) DBOpts {
	return func(d *DBConf) {
		d.MaxIdle = idle
	}
}

func WithMaxOpen(open int) DBOpts {
	return func(d *DBConf) {
		d.MaxOpen = open
	}
}

func WithMaxLifetime(lifetime time.Duration) DBOpts {
	return func(d *DBConf) {
		d.MaxLifetime = lifetime
	}
}

func WithLogLevel(level logger.LogLevel) DBOpts {
	return func(d *DBConf) {
		d.LogLevel = level
	}
}

// DSN builds the driver connection string for the configured dialect.
func (d *DBConf) DSN() (string, error) {
	if d.URL != "" {
		return d.URL, nil
	}

	switch d.Dialect {
	case DialectPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(d.User, d.Password),
			Host:     fmt.Sprintf("%s:%s", d.Host, d.Port),
			Path:     d.Name,
			RawQuery: "sslmode=disable",
		}
		return u.String(), nil
	case DialectMySQL:
		// clientFoundRows makes UPDATE report matched rows, which the
		// conditional state and log updates rely on.
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC&clientFoundRows=true",
			d.User, d.Password, d.Host, d.Port, d.Name), nil
	case DialectSQLite:
		return fmt.Sprintf("file:%s.db", d.Name), nil
	}
	return "", fmt.Errorf("unsupported database dialect %q", d.Dialect)
}

var sqlOpen = sql.Open

// dialector also returns the pool it opened itself, if any, so a failed
// Open can release it.
func (d *DBConf) dialector() (gorm.Dialector, *sql.DB, error) {
	dsn, err := d.DSN()
	if err != nil {
		return nil, nil, err
	}

	switch d.Dialect {
	case DialectPostgres:
		sdb, err := sqlOpen("postgres", dsn)
		if err != nil {
			return nil, nil, err
		}
		return postgres.New(postgres.Config{Conn: sdb}), sdb, nil
	case DialectMySQL:
		return mysql.Open(dsn), nil, nil
	default:
		return sqlite.Open(dsn), nil, nil
	}
}

// Open connects to the store and verifies the connection with a ping.
func Open(options ...DBOpts) (*gorm.DB, error) {
	dbConf := NewConf()
	for _, o := range options {
		o(dbConf)
	}

	dialector, pool, err := dbConf.dialector()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(dbConf.LogLevel),
	})
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", dbConf.Dialect, err)
	}

	sdb, err := db.DB()
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	// sqlite allows one writer; a single connection serializes the
	// runners instead of failing them with SQLITE_BUSY.
	if dbConf.Dialect == DialectSQLite {
		dbConf.MaxOpen, dbConf.MaxIdle = 1, 1
	}
	sdb.SetMaxIdleConns(dbConf.MaxIdle)
	sdb.SetMaxOpenConns(dbConf.MaxOpen)
	sdb.SetConnMaxLifetime(dbConf.MaxLifetime)

	if err := sdb.Ping(); err != nil {
		sdb.Close()
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the tasks and task_log tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&task.Task{}, &task.TaskLog{})
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sdb, err := db.DB()
	if err != nil {
		return err
	}
	return sdb.Close()
}
