package logger

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	DefaultLevel string            `yaml:"defaultlevel" json:"default_level"` // default level for all modules
	Timezone     string            `yaml:"timezone" json:"timezone"`          // "Local", "UTC", or an IANA name
	Console      ConsoleOutput     `yaml:"console" json:"console"`
	FileOutput   FileOutput        `yaml:"fileoutput" json:"file_output"`
	ModuleLevels map[string]string `yaml:"modulelevels" json:"module_levels"` // per-module level overrides
}

// ConsoleOutput configures human-readable text output on stdout.
type ConsoleOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Level   string `yaml:"level" json:"level"`
}

// FileOutput configures JSON output to a file for log aggregation.
type FileOutput struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Level   string `yaml:"level" json:"level"`
}

const (
	DefaultLogLevel = "info"
	DefaultLogPath  = "logs/emotion-go.log"
)
