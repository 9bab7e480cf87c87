// Package actors defines the queue contract between the gateway and
// the deploy worker: actor names and their keyword arguments.
package actors

import (
	"time"

	"github.com/google/uuid"
	"github.com/pubgate/gateway/common/models"
)

// Actor names
const (
	DeployConfig             = "deploy_config"
	CompleteDeployConfigTask = "complete_deploy_config_task"
	FlushCDNCache            = "flush_cdn_cache"
)

// DeployConfigArgs are the kwargs of a deploy_config message. The task
// id is carried as the message id.
type DeployConfigArgs struct {
	Env      string            `json:"env"`
	FromDate time.Time         `json:"from_date"`
	Config   *models.CDNConfig `json:"config"`
}

// CompleteDeployArgs are the kwargs of a completion follow-up message
type CompleteDeployArgs struct {
	TaskID     uuid.UUID `json:"task_id"`
	Env        string    `json:"env,omitempty"`
	FlushPaths []string  `json:"flush_paths"`
}

// FlushCacheArgs are the kwargs of an ad-hoc cache flush message. The
// task id is carried as the message id.
type FlushCacheArgs struct {
	Env   string   `json:"env"`
	Paths []string `json:"paths"`
}
