package config

import (
	"tasksched/app"
	"tasksched/app/controller/health"
	"tasksched/app/controller/tasks"

	"github.com/labstack/echo/v4"
)

// AddRoutes wires the read and submit API onto e using the container's
// repository and producer.
func AddRoutes(e *echo.Echo, container *app.Container) error {
	sqlDB, err := container.DB.DB()
	if err != nil {
		return err
	}

	root := e.Group("")
	v1Route := e.Group("/api/v1")

	health.Register(root, sqlDB)

	tasksHandler := tasks.NewHandler(container.TaskRepository, container.Producer)
	tasksHandler.RegisterRoutes(v1Route.Group("/tasks"), v1Route.Group("/logs"))
	return nil
}
