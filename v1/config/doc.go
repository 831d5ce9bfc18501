// Package config loads the application configuration from an optional YAML
// file and the environment.
//
// The file mirrors Config:
//
//	postgres:
//	  connection:
//	    host: db
//	    port: "5432"
//	redis:
//	  host: redis
//	jobs:
//	  docker_registry: registry.local
//
// Every field can be overridden by ANNOTATION_ followed by its envconfig tag,
// e.g. ANNOTATION_POSTGRES_HOST or ANNOTATION_JOBS_STALL_TIMEOUT=5m.
package config
