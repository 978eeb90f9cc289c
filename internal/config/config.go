// Package config loads the FFE's environment-variable configuration
// surface, in the flat getEnv-with-default idiom the teacher's per-service
// config packages use (wisefido-alarm/internal/config,
// wisefido-sensor-fusion/internal/config), generalized to name the FFE's
// full configuration surface explicitly.
package config

import (
	"os"
	"strconv"
	"strings"

	"fatigue-fusion-engine/internal/model"
)

// RedisConfig mirrors owl-common/config.RedisConfig's shape.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig mirrors owl-common/config.DatabaseConfig's shape.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// MQTTConfig mirrors owl-common/config.MQTTConfig's shape.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config is the FFE's full configuration surface.
type Config struct {
	Redis    RedisConfig
	Database DatabaseConfig
	MQTT     MQTTConfig

	Log struct {
		Level  string
		Format string
	}

	RedisTTLS            int
	StateHistoryLimit    int
	ThresholdMild        float64
	ThresholdModerate    float64
	ThresholdSevere      float64
	Hysteresis           float64
	MinStageDurationS    float64
	MaxCriticalAlertRateS float64
	WindowSize           int
	TrendWindowSize      int
	EMAWeights           []float64
	VisionMaxAgeS        float64
	AlcoholOverrideWindowS float64

	SensitivityMultipliers map[model.Sensitivity]float64
}

// Load reads the configuration surface from the environment, applying
// the stated defaults everywhere an override is absent.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "ffe")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "ffe")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	cfg.RedisTTLS = getEnvInt("REDIS_TTL_S", 300)
	cfg.StateHistoryLimit = getEnvInt("STATE_HISTORY_LIMIT", 1000)

	cfg.ThresholdMild = getEnvFloat("THRESHOLD_MILD", 0.25)
	cfg.ThresholdModerate = getEnvFloat("THRESHOLD_MODERATE", 0.50)
	cfg.ThresholdSevere = getEnvFloat("THRESHOLD_SEVERE", 0.75)
	cfg.Hysteresis = getEnvFloat("HYSTERESIS", 0.10)

	cfg.MinStageDurationS = getEnvFloat("MIN_STAGE_DURATION_S", 2.0)
	cfg.MaxCriticalAlertRateS = getEnvFloat("MAX_CRITICAL_ALERT_RATE_S", 0.5)

	cfg.WindowSize = getEnvInt("WINDOW_SIZE", 5)
	cfg.TrendWindowSize = getEnvInt("TREND_WINDOW_SIZE", 10)
	cfg.EMAWeights = getEnvFloatList("EMA_WEIGHTS", []float64{0.4, 0.3, 0.2, 0.07, 0.03})

	cfg.VisionMaxAgeS = getEnvFloat("VISION_MAX_AGE_S", 5.0)
	cfg.AlcoholOverrideWindowS = getEnvFloat("ALCOHOL_OVERRIDE_WINDOW_S", 10.0)

	cfg.SensitivityMultipliers = map[model.Sensitivity]float64{
		model.SensitivityHigh:   getEnvFloat("SENSITIVITY_HIGH_MULTIPLIER", 0.7),
		model.SensitivityMedium: getEnvFloat("SENSITIVITY_MEDIUM_MULTIPLIER", 1.0),
		model.SensitivityLow:    getEnvFloat("SENSITIVITY_LOW_MULTIPLIER", 1.3),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvFloatList parses a comma-separated list, e.g. "0.4,0.3,0.2,0.07,0.03".
func getEnvFloatList(key string, defaultValue []float64) []float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, f)
	}
	return out
}
