// Package config loads the flowkit CLI configuration from defaults, the
// flowkit.yaml file, FLOWKIT_ environment variables and command flags.
package config

// Default configuration values.
const (
	DefaultFlowsDir  = "flows"
	DefaultStateFile = ".flowkit/state.db"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultWebHost   = "localhost"
	DefaultWebPort   = 8765
)

// LogConfig selects the slog handler built by the CLI.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// WebConfig is the listen address of the web UI.
type WebConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// TwitterConfig overrides the twitter component endpoints.
type TwitterConfig struct {
	SearchURL string  `koanf:"search_url"`
	StreamURL string  `koanf:"stream_url"`
	RateLimit float64 `koanf:"rate_limit"`
}

// GeoConfig configures the geocoder used by the geo components.
type GeoConfig struct {
	BaseURL   string  `koanf:"base_url"`
	AppID     string  `koanf:"app_id"`
	RateLimit float64 `koanf:"rate_limit"`
}

// Config holds all CLI configuration options.
type Config struct {
	ProjectRoot string `koanf:"-"`

	FlowsDir  string        `koanf:"flows_dir"`
	StatePath string        `koanf:"state_path"`
	Database  string        `koanf:"database"`
	Verbose   bool          `koanf:"verbose"`
	Output    string        `koanf:"output"`
	Log       LogConfig     `koanf:"log"`
	Web       WebConfig     `koanf:"web"`
	Twitter   TwitterConfig `koanf:"twitter"`
	Geo       GeoConfig     `koanf:"geo"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		FlowsDir:  DefaultFlowsDir,
		StatePath: DefaultStateFile,
		Output:    "auto",
		Log:       LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
		Web:       WebConfig{Host: DefaultWebHost, Port: DefaultWebPort},
	}
}
