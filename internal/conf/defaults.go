// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers every key so env overrides and Unmarshal see it.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "emotion-go")

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/emotion-go.log")
	viper.SetDefault("logging.fileoutput.level", "debug")
	viper.SetDefault("logging.modulelevels", map[string]string{})

	viper.SetDefault("capture.source.type", "snapshot")
	viper.SetDefault("capture.source.url", "http://localhost:8081/snapshot.jpg")
	viper.SetDefault("capture.source.directory", "")
	viper.SetDefault("capture.source.loop", false)
	viper.SetDefault("capture.source.timeout", 2*time.Second)
	viper.SetDefault("capture.interval", time.Second)
	viper.SetDefault("capture.cameraresolution", "1280x720")
	viper.SetDefault("capture.detectionthreshold", 0.5)
	viper.SetDefault("capture.enabledemotions", []string{"angry", "disgust", "fear", "happy", "sad", "surprise", "neutral"})
	viper.SetDefault("capture.maxsessionduration", 2*time.Hour)
	viper.SetDefault("capture.mirror", false)
	viper.SetDefault("capture.degradedafter", 10)
	viper.SetDefault("capture.statspushevery", 10)
	viper.SetDefault("capture.draintimeout", 10*time.Second)
	viper.SetDefault("capture.startretrydelay", 2*time.Second)
	viper.SetDefault("capture.startretrymaxdelay", time.Minute)

	viper.SetDefault("service.baseurl", "http://localhost:5000")
	viper.SetDefault("service.analyzepath", "/analyze-emotion")
	viper.SetDefault("service.encoding", "multipart")
	viper.SetDefault("service.token", "")
	viper.SetDefault("service.timeout", 5*time.Second)
	viper.SetDefault("service.sessiontimeout", 10*time.Second)
	viper.SetDefault("service.retrycount", 3)

	viper.SetDefault("alert.window", time.Second)
	viper.SetDefault("alert.threshold", 5)
	viper.SetDefault("alert.cooldown", time.Duration(0))
	viper.SetDefault("alert.notifydegraded", true)
	viper.SetDefault("alert.push.enabled", false)
	viper.SetDefault("alert.push.urls", []string{})
	viper.SetDefault("alert.push.timeout", 10*time.Second)

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.topicprefix", "emotion-go")
	viper.SetDefault("mqtt.results", false)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", ":8080")
	viper.SetDefault("webserver.allowedorigins", []string{})
	viper.SetDefault("webserver.maxconnections", 64)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", ":9090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")

	viper.SetDefault("journal.enabled", true)
	viper.SetDefault("journal.type", "sqlite")
	viper.SetDefault("journal.path", "emotion-go.db")
	viper.SetDefault("journal.dsn", "")
}
