// Package conf loads and validates emotion-go settings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/emotion-go/internal/errors"
	"github.com/tphakala/emotion-go/internal/logger"
)

// EnvPrefix prefixes environment overrides, e.g. EMOTION_SERVICE_TOKEN.
const EnvPrefix = "EMOTION"

// Settings is the root configuration.
type Settings struct {
	Debug bool `yaml:"debug"`

	Main struct {
		Name string `yaml:"name"` // instance name, used as MQTT client id and user agent suffix
	} `yaml:"main"`

	Logging   logger.LoggingConfig `yaml:"logging"`
	Capture   CaptureSettings      `yaml:"capture"`
	Service   ServiceSettings      `yaml:"service"`
	Alert     AlertSettings        `yaml:"alert"`
	MQTT      MQTTSettings         `yaml:"mqtt"`
	WebServer WebServerSettings    `yaml:"webserver"`
	Metrics   MetricsSettings      `yaml:"metrics"`
	Sentry    SentrySettings       `yaml:"sentry"`
	Journal   JournalSettings      `yaml:"journal"`
}

// FrameSourceSettings selects where frames come from.
type FrameSourceSettings struct {
	Type      string        `yaml:"type"`      // snapshot or directory
	URL       string        `yaml:"url"`       // snapshot URL for type snapshot
	Directory string        `yaml:"directory"` // image directory for type directory
	Loop      bool          `yaml:"loop"`      // restart the directory replay when exhausted
	Timeout   time.Duration `yaml:"timeout"`   // snapshot fetch timeout
}

// CaptureSettings controls the capture loop and the session config sent to
// the analysis service.
type CaptureSettings struct {
	Source             FrameSourceSettings `yaml:"source"`
	Interval           time.Duration       `yaml:"interval"`           // tick cadence
	CameraResolution   string              `yaml:"cameraresolution"`   // e.g. 1280x720
	DetectionThreshold float64             `yaml:"detectionthreshold"` // 0..1
	EnabledEmotions    []string            `yaml:"enabledemotions"`
	MaxSessionDuration time.Duration       `yaml:"maxsessionduration"` // 0 disables the limit
	Mirror             bool                `yaml:"mirror"`             // mirror overlay boxes for front cameras
	DegradedAfter      int                 `yaml:"degradedafter"`      // consecutive failed cycles before a degraded notice
	StatsPushEvery     int                 `yaml:"statspushevery"`     // analyses between server stats pushes, 0 disables
	DrainTimeout       time.Duration       `yaml:"draintimeout"`       // wait for the in-flight cycle on stop
	StartRetryDelay    time.Duration       `yaml:"startretrydelay"`    // first wait after a failed start at boot
	StartRetryMaxDelay time.Duration       `yaml:"startretrymaxdelay"` // cap for the doubling start retry delay
}

// ServiceSettings describes the remote analysis service.
type ServiceSettings struct {
	BaseURL        string        `yaml:"baseurl"`
	AnalyzePath    string        `yaml:"analyzepath"`
	Encoding       string        `yaml:"encoding"` // multipart or json
	Token          string        `yaml:"token"`
	Timeout        time.Duration `yaml:"timeout"`        // analysis call timeout
	SessionTimeout time.Duration `yaml:"sessiontimeout"` // session API call timeout
	RetryCount     int           `yaml:"retrycount"`     // session API retries
}

// PushSettings configures shoutrrr push notifications.
type PushSettings struct {
	Enabled bool          `yaml:"enabled"`
	URLs    []string      `yaml:"urls"`
	Timeout time.Duration `yaml:"timeout"`
}

// AlertSettings configures the negative streak detector and its delivery.
type AlertSettings struct {
	Window         time.Duration `yaml:"window"`
	Threshold      int           `yaml:"threshold"`
	Cooldown       time.Duration `yaml:"cooldown"` // minimum gap between delivered alerts, 0 disables
	NotifyDegraded bool          `yaml:"notifydegraded"`
	Push           PushSettings  `yaml:"push"`
}

// MQTTSettings configures the MQTT publisher.
type MQTTSettings struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topicprefix"`
	Results     bool   `yaml:"results"` // also publish every analysis result
}

// WebServerSettings configures the presentation API.
type WebServerSettings struct {
	Enabled        bool     `yaml:"enabled"`
	Listen         string   `yaml:"listen"`
	AllowedOrigins []string `yaml:"allowedorigins"` // CORS origins, empty allows all
	MaxConnections int      `yaml:"maxconnections"` // concurrent client connections, 0 is unlimited
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// SentrySettings configures error telemetry.
type SentrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// JournalSettings configures the local session journal.
type JournalSettings struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type"` // sqlite or mysql
	Path    string `yaml:"path"` // sqlite file
	DSN     string `yaml:"dsn"`  // mysql dsn
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads .env, the config file and EMOTION_* environment variables.
// An empty configFile searches the default paths and writes a default config
// when none exists.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

// GetSettings returns the settings from the last successful Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// loadDotEnv loads secrets from a .env file into the process environment
// without overriding variables that are already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return errors.New(fmt.Errorf("error loading %s: %w", path, err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	paths, err := DefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, p := range paths {
		viper.AddConfigPath(p)
	}

	err = viper.ReadInConfig()
	if err == nil {
		return nil
	}
	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) {
		return fmt.Errorf("fatal error reading config file: %w", err)
	}
	return createDefaultConfig(filepath.Join(paths[1], "config.yaml"))
}

// DefaultConfigPaths lists the directories searched for config.yaml.
func DefaultConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}
	return []string{
		".",
		filepath.Join(home, ".config", "emotion-go"),
		"/etc/emotion-go",
	}, nil
}

// createDefaultConfig writes the current defaults to path.
func createDefaultConfig(path string) error {
	defaults := &Settings{}
	if err := viper.Unmarshal(defaults); err != nil {
		return fmt.Errorf("error building default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := SaveYAMLConfig(path, defaults); err != nil {
		return err
	}
	logger.Global().Module("conf").Info("created default config file", logger.String("path", path))
	viper.SetConfigFile(path)
	return viper.ReadInConfig()
}

// SaveYAMLConfig writes settings to configPath through a temporary file and
// rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}
	if err := os.Rename(tmpName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}
