// Package production contains production configuration of the app
package production

import (
	"tasksched/config"
)

type prodconf struct{}

func New() config.AppConfiger {
	return prodconf{}
}

func (pc prodconf) GetDBDialect() string {
	return "postgres"
}

// GetDBURL is empty so the DSN is built from DB_HOST, DB_PORT and friends.
func (pc prodconf) GetDBURL() string {
	return ""
}

func (pc prodconf) GetLocalMode() bool {
	return false
}
