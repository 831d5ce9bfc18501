package config

import (
	"github.com/Aleph-Alpha/annotation-engine/v1/jobs"
	"github.com/Aleph-Alpha/annotation-engine/v1/kube"
	"github.com/Aleph-Alpha/annotation-engine/v1/logger"
	"github.com/Aleph-Alpha/annotation-engine/v1/metrics"
	"github.com/Aleph-Alpha/annotation-engine/v1/minio"
	"github.com/Aleph-Alpha/annotation-engine/v1/postgres"
	"github.com/Aleph-Alpha/annotation-engine/v1/redis"
	"github.com/Aleph-Alpha/annotation-engine/v1/tracer"
)

// EnvPrefix is prepended to every environment variable, so the Postgres host
// is read from ANNOTATION_POSTGRES_HOST.
const EnvPrefix = "ANNOTATION"

// Config is the whole application configuration. Each section keeps the
// tags of the package it configures.
type Config struct {
	Logger   logger.Config   `yaml:"logger"`
	Tracer   tracer.Config   `yaml:"tracer"`
	Metrics  metrics.Config  `yaml:"metrics"`
	Postgres postgres.Config `yaml:"postgres"`
	Redis    redis.Config    `yaml:"redis"`
	Minio    minio.Config    `yaml:"minio"`
	Kube     kube.Config     `yaml:"kube"`
	Jobs     jobs.Config     `yaml:"jobs"`
}
