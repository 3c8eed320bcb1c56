// Package config holds the environment profiles and routing of the app
package config

// AppConfiger supplies the defaults that differ between environments.
type AppConfiger interface {
	GetDBDialect() string
	GetDBURL() string
	GetLocalMode() bool
}
