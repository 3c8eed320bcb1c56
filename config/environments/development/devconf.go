// Package development contains development configuration of the app
package development

import (
	"tasksched/config"
)

type devconf struct{}

func New() config.AppConfiger {
	return devconf{}
}

func (dc devconf) GetDBDialect() string {
	return "sqlite"
}

func (dc devconf) GetDBURL() string {
	return "file:tasksched.db"
}

func (dc devconf) GetLocalMode() bool {
	return true
}
