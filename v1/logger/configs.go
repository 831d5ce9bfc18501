package logger

const (
	Debug   = "debug"
	Info    = "info"
	Warning = "warning"
	Error   = "error"
)

// DefaultServiceName is stamped on every entry when Config.ServiceName is empty.
const DefaultServiceName = "annotation-engine"

type Config struct {
	// debug, info, warning or error; anything else means info.
	Level string `yaml:"level" envconfig:"LOGGER_LEVEL"`

	ServiceName string `yaml:"service_name" envconfig:"LOGGER_SERVICE_NAME"`

	// EnableTracing adds trace_id and span_id to entries logged through the
	// *WithContext methods.
	EnableTracing bool `yaml:"enable_tracing" envconfig:"LOGGER_ENABLE_TRACING"`
}
