package jobs

import "time"

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultStallTimeout = 300 * time.Second
	DefaultWorkClaim    = "media-pv-claim"
	DefaultMediaRoot    = "/media"

	// jobCreateAttempts bounds retries of a rejected Job create.
	jobCreateAttempts = 3
	// maxPodFailures is how many failed pods a job may accumulate.
	maxPodFailures = 1
)

type Config struct {
	// Registry hosts the marshal image; its credentials pull it.
	DockerRegistry string `yaml:"docker_registry" envconfig:"JOBS_DOCKER_REGISTRY"`
	DockerUsername string `yaml:"docker_username" envconfig:"JOBS_DOCKER_USERNAME"`
	DockerPassword string `yaml:"docker_password" envconfig:"JOBS_DOCKER_PASSWORD"`

	// MainHost is the public host of the REST API handed to containers.
	MainHost string `yaml:"main_host" envconfig:"JOBS_MAIN_HOST"`

	// MediaRoot holds per-project log files and per-run working directories.
	MediaRoot string `yaml:"media_root" envconfig:"JOBS_MEDIA_ROOT"`
	WorkClaim string `yaml:"work_claim" envconfig:"JOBS_WORK_CLAIM"`

	PollInterval time.Duration `yaml:"poll_interval" envconfig:"JOBS_POLL_INTERVAL"`
	StallTimeout time.Duration `yaml:"stall_timeout" envconfig:"JOBS_STALL_TIMEOUT"`
}

func (c Config) withDefaults() Config {
	if c.MediaRoot == "" {
		c.MediaRoot = DefaultMediaRoot
	}
	if c.WorkClaim == "" {
		c.WorkClaim = DefaultWorkClaim
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.StallTimeout == 0 {
		c.StallTimeout = DefaultStallTimeout
	}
	return c
}
