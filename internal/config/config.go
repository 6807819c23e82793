package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/optical_ruler/internal/calibration"
)

// Config holds all application configuration values.
type Config struct {
	// Logging
	LogMode string // "production" or "development"

	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string

	// Topics
	TopicDiagnostics string
	TopicCalibration string

	// Frame source
	Source        string // "synthetic" or "replay"
	ReplayDir     string
	SyntheticSeed int64

	// Timing
	FrameInterval       int // milliseconds between ingested frames
	ConsoleLogInterval  int // milliseconds between console lines
	CalibrationInterval int // milliseconds between instant-calibration publishes

	// Capture geometry: the crop rectangle markers are normalized against
	CropWidth  int // pixels
	CropHeight int // pixels

	// Estimator tunables
	PoolMaxSamples     int
	PoolTTLMS          int
	PoolFallbackTTLMS  int
	WeightFloor        float64
	MinCandidates      int
	BorderFraction     float64
	MinMMPerPixel      float64
	MaxMMPerPixel      float64
	MinDepthMM         float64
	MaxDepthMM         float64
	IPDMinMM           float64
	IPDMaxMM           float64
	AnthroTolerance    float64
	AnthroWeightFactor float64

	// Web Server
	WebServerPort int
	WebRoot       string

	// Store
	StorePath string
}

// defaults returns the configuration used for keys absent from the file.
// Estimator values mirror calibration.DefaultParams so an empty file and
// the shipped pipeline behave identically.
func defaults() *Config {
	p := calibration.DefaultParams()
	return &Config{
		LogMode: "development",

		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDProducer: "optical-producer",
		MQTTClientIDConsole:  "optical-console-subscriber",
		MQTTClientIDWeb:      "optical-web-subscriber",

		TopicDiagnostics: "optical/diagnostics",
		TopicCalibration: "optical/calibration",

		Source:        "synthetic",
		SyntheticSeed: 1,

		FrameInterval:       33,
		ConsoleLogInterval:  500,
		CalibrationInterval: 1000,

		CropWidth:  1080,
		CropHeight: 1440,

		PoolMaxSamples:     p.MaxSamples,
		PoolTTLMS:          int(p.SampleTTL / time.Millisecond),
		PoolFallbackTTLMS:  int(p.FallbackTTL / time.Millisecond),
		WeightFloor:        p.WeightFloor,
		MinCandidates:      p.MinCandidates,
		BorderFraction:     p.Depth.BorderFraction,
		MinMMPerPixel:      p.Depth.MinMMPerPixel,
		MaxMMPerPixel:      p.Depth.MaxMMPerPixel,
		MinDepthMM:         p.Depth.MinDepthMM,
		MaxDepthMM:         p.Depth.MaxDepthMM,
		IPDMinMM:           p.IPDMinMM,
		IPDMaxMM:           p.IPDMaxMM,
		AnthroTolerance:    p.AnthroTolerance,
		AnthroWeightFactor: p.AnthroWeightFactor,

		WebServerPort: 8080,
		WebRoot:       "web",

		StorePath: "optical_ruler.db",
	}
}

// Package-level singleton. globalConfig stays unexported so nothing
// outside this package can swap or mutate it without going through the
// lock; configOnce makes InitGlobal idempotent; configMu lets many
// readers share Get while initialization holds the write lock.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file over the built-in defaults and
// returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields and cross-key constraints
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Logging
	case "LOG_MODE":
		if value != "production" && value != "development" {
			return fmt.Errorf("LOG_MODE must be \"production\" or \"development\", got %q", value)
		}
		c.LogMode = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value

	// Topics
	case "TOPIC_DIAGNOSTICS":
		c.TopicDiagnostics = value
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value

	// Frame source
	case "SOURCE":
		if value != "synthetic" && value != "replay" {
			return fmt.Errorf("SOURCE must be \"synthetic\" or \"replay\", got %q", value)
		}
		c.Source = value
	case "REPLAY_DIR":
		c.ReplayDir = value
	case "SYNTHETIC_SEED":
		seed, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SYNTHETIC_SEED %q: %w", value, err)
		}
		c.SyntheticSeed = seed

	// Timing
	case "FRAME_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid FRAME_INTERVAL %q: %w", value, err)
		}
		if interval < 1 {
			return fmt.Errorf("FRAME_INTERVAL must be at least 1 ms, got %d", interval)
		}
		c.FrameInterval = interval
	case "CONSOLE_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL %q: %w", value, err)
		}
		if interval < 1 {
			return fmt.Errorf("CONSOLE_LOG_INTERVAL must be at least 1 ms, got %d", interval)
		}
		c.ConsoleLogInterval = interval
	case "CALIBRATION_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_INTERVAL %q: %w", value, err)
		}
		if interval < 1 {
			return fmt.Errorf("CALIBRATION_INTERVAL must be at least 1 ms, got %d", interval)
		}
		c.CalibrationInterval = interval

	// Capture geometry
	case "CROP_WIDTH":
		px, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CROP_WIDTH %q: %w", value, err)
		}
		if px < 1 {
			return fmt.Errorf("CROP_WIDTH must be positive, got %d", px)
		}
		c.CropWidth = px
	case "CROP_HEIGHT":
		px, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CROP_HEIGHT %q: %w", value, err)
		}
		if px < 1 {
			return fmt.Errorf("CROP_HEIGHT must be positive, got %d", px)
		}
		c.CropHeight = px

	// Estimator tunables
	case "POOL_MAX_SAMPLES":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid POOL_MAX_SAMPLES %q: %w", value, err)
		}
		if n < 1 || n > 10000 {
			return fmt.Errorf("POOL_MAX_SAMPLES must be 1-10000, got %d", n)
		}
		c.PoolMaxSamples = n
	case "POOL_TTL_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid POOL_TTL_MS %q: %w", value, err)
		}
		if ms < 1 {
			return fmt.Errorf("POOL_TTL_MS must be positive, got %d", ms)
		}
		c.PoolTTLMS = ms
	case "POOL_FALLBACK_TTL_MS":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid POOL_FALLBACK_TTL_MS %q: %w", value, err)
		}
		if ms < 1 {
			return fmt.Errorf("POOL_FALLBACK_TTL_MS must be positive, got %d", ms)
		}
		c.PoolFallbackTTLMS = ms
	case "WEIGHT_FLOOR":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid WEIGHT_FLOOR %q: %w", value, err)
		}
		if v < 0 {
			return fmt.Errorf("WEIGHT_FLOOR must not be negative, got %g", v)
		}
		c.WeightFloor = v
	case "MIN_CANDIDATES":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MIN_CANDIDATES %q: %w", value, err)
		}
		if n < 1 {
			return fmt.Errorf("MIN_CANDIDATES must be positive, got %d", n)
		}
		c.MinCandidates = n
	case "BORDER_FRACTION":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid BORDER_FRACTION %q: %w", value, err)
		}
		if v < 0 || v > 0.4 {
			return fmt.Errorf("BORDER_FRACTION must be 0-0.4, got %g", v)
		}
		c.BorderFraction = v
	case "MIN_MM_PER_PIXEL":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MIN_MM_PER_PIXEL %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("MIN_MM_PER_PIXEL must be positive, got %g", v)
		}
		c.MinMMPerPixel = v
	case "MAX_MM_PER_PIXEL":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_MM_PER_PIXEL %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("MAX_MM_PER_PIXEL must be positive, got %g", v)
		}
		c.MaxMMPerPixel = v
	case "MIN_DEPTH_MM":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MIN_DEPTH_MM %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("MIN_DEPTH_MM must be positive, got %g", v)
		}
		c.MinDepthMM = v
	case "MAX_DEPTH_MM":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_DEPTH_MM %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("MAX_DEPTH_MM must be positive, got %g", v)
		}
		c.MaxDepthMM = v
	case "IPD_MIN_MM":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid IPD_MIN_MM %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("IPD_MIN_MM must be positive, got %g", v)
		}
		c.IPDMinMM = v
	case "IPD_MAX_MM":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid IPD_MAX_MM %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("IPD_MAX_MM must be positive, got %g", v)
		}
		c.IPDMaxMM = v
	case "ANTHRO_TOLERANCE":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ANTHRO_TOLERANCE %q: %w", value, err)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("ANTHRO_TOLERANCE must be 0-1, got %g", v)
		}
		c.AnthroTolerance = v
	case "ANTHRO_WEIGHT_FACTOR":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid ANTHRO_WEIGHT_FACTOR %q: %w", value, err)
		}
		if v < 0 || v > 1 {
			return fmt.Errorf("ANTHRO_WEIGHT_FACTOR must be 0-1, got %g", v)
		}
		c.AnthroWeightFactor = v

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 1 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 1-65535, got %d", port)
		}
		c.WebServerPort = port
	case "WEB_ROOT":
		c.WebRoot = value

	// Store
	case "STORE_PATH":
		c.StorePath = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks required fields and cross-key constraints.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.Source == "replay" && c.ReplayDir == "" {
		return fmt.Errorf("REPLAY_DIR is required when SOURCE=replay")
	}
	if c.MinMMPerPixel >= c.MaxMMPerPixel {
		return fmt.Errorf("MIN_MM_PER_PIXEL (%g) must be below MAX_MM_PER_PIXEL (%g)", c.MinMMPerPixel, c.MaxMMPerPixel)
	}
	if c.MinDepthMM >= c.MaxDepthMM {
		return fmt.Errorf("MIN_DEPTH_MM (%g) must be below MAX_DEPTH_MM (%g)", c.MinDepthMM, c.MaxDepthMM)
	}
	if c.IPDMinMM >= c.IPDMaxMM {
		return fmt.Errorf("IPD_MIN_MM (%g) must be below IPD_MAX_MM (%g)", c.IPDMinMM, c.IPDMaxMM)
	}
	if c.PoolFallbackTTLMS < c.PoolTTLMS {
		return fmt.Errorf("POOL_FALLBACK_TTL_MS (%d) must not be below POOL_TTL_MS (%d)", c.PoolFallbackTTLMS, c.PoolTTLMS)
	}
	if c.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required")
	}
	return nil
}

// EstimatorParams maps the config onto estimator parameters, starting
// from the shipped defaults for everything the file does not cover.
func (c *Config) EstimatorParams() calibration.Params {
	p := calibration.DefaultParams()
	p.MaxSamples = c.PoolMaxSamples
	p.SampleTTL = time.Duration(c.PoolTTLMS) * time.Millisecond
	p.FallbackTTL = time.Duration(c.PoolFallbackTTLMS) * time.Millisecond
	p.WeightFloor = c.WeightFloor
	p.MinCandidates = c.MinCandidates
	p.IPDMinMM = c.IPDMinMM
	p.IPDMaxMM = c.IPDMaxMM
	p.AnthroTolerance = c.AnthroTolerance
	p.AnthroWeightFactor = c.AnthroWeightFactor
	p.Depth.BorderFraction = c.BorderFraction
	p.Depth.MinMMPerPixel = c.MinMMPerPixel
	p.Depth.MaxMMPerPixel = c.MaxMMPerPixel
	p.Depth.MinDepthMM = c.MinDepthMM
	p.Depth.MaxDepthMM = c.MaxDepthMM
	return p
}

// InitGlobal initializes the global configuration from file. Uses
// sync.Once so it only runs once even if called multiple times, and the
// write lock so no reader can observe a half-set pointer.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be
// called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
