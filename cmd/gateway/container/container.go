package container

import (
	"github.com/pubgate/gateway/cmd/gateway/service"
	"github.com/pubgate/gateway/common/bootstrap"
	"github.com/pubgate/gateway/common/repository"
	"github.com/pubgate/gateway/common/validation"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	// Components
	Components *bootstrap.Components

	// Repositories
	TaskRepo    *repository.TaskRepository
	PublishRepo *repository.PublishRepository
	PathRepo    *repository.PublishedPathRepository

	// Services
	PublishService *service.PublishService
	DeployService  *service.DeployService
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	// Initialize repositories
	taskRepo := repository.NewTaskRepository(components.DB)
	publishRepo := repository.NewPublishRepository(components.DB)
	pathRepo := repository.NewPublishedPathRepository(components.DB)

	// Initialize services (bottom-up: dependencies first)
	validator := validation.NewItemValidator(components.Config.CDN.AutoindexFilename, components.Logger)
	publishService := service.NewPublishService(publishRepo, pathRepo, validator, components.Logger)
	deployService := service.NewDeployService(
		taskRepo,
		components.Broker,
		components.Config.Worker.FlushDeadline,
		components.Logger,
	)

	return &Container{
		Components:     components,
		TaskRepo:       taskRepo,
		PublishRepo:    publishRepo,
		PathRepo:       pathRepo,
		PublishService: publishService,
		DeployService:  deployService,
	}, nil
}
