package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	ASR         ASRConfig        `yaml:"asr"`
	Delegated   DelegatedConfig  `yaml:"delegated"`
	VAD         VADConfig        `yaml:"vad"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

// ASRConfig selects and parameterizes the recognition engine.
type ASRConfig struct {
	Engine     string `yaml:"engine"` // mock, embedded, delegated
	Language   string `yaml:"language"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
	TimeoutSec int    `yaml:"timeout_sec"`
	Command    string `yaml:"command"`     // embedded engine: streaming model subprocess
	ModelPath  string `yaml:"model_path"`  // acoustic model file or directory
	ScorerPath string `yaml:"scorer_path"` // optional external language-model scorer
}

// DelegatedConfig parameterizes the always-on external recognizer process.
type DelegatedConfig struct {
	Binary           string `yaml:"binary"`
	AssistantDir     string `yaml:"assistant_dir"`
	BrokerHost       string `yaml:"broker_host"`
	BrokerPort       int    `yaml:"broker_port"`
	BrokerUsername   string `yaml:"broker_username"`
	BrokerPassword   string `yaml:"broker_password"`
	BrokerTLSFile    string `yaml:"broker_tls_file"`
	ModelDir         string `yaml:"model_dir"`
	Partial          bool   `yaml:"partial"`
	AutoRestart      bool   `yaml:"auto_restart"`
	MaxRestarts      int    `yaml:"max_restarts"`
	RestartBackoffMS int    `yaml:"restart_backoff_ms"`
	ConflictingUnit  string `yaml:"conflicting_unit"`
}

type VADConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ModelPath    string  `yaml:"model_path"`
	Threshold    float32 `yaml:"threshold"`
	MinSilenceMS int     `yaml:"min_silence_ms"`
	MinSpeechMS  int     `yaml:"min_speech_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-asr",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-asr.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		ASR: ASRConfig{
			Engine:     "mock",
			Language:   "en",
			SampleRate: 16000,
			Channels:   1,
			TimeoutSec: 10,
		},
		Delegated: DelegatedConfig{
			Binary:           "snips-asr",
			BrokerHost:       "localhost",
			BrokerPort:       1883,
			ModelDir:         "/usr/share/snips/snips-asr-model-en-500MB",
			Partial:          true,
			AutoRestart:      true,
			MaxRestarts:      5,
			RestartBackoffMS: 1000,
			ConflictingUnit:  "snips-asr",
		},
		VAD: VADConfig{
			Enabled:      false,
			Threshold:    0.5,
			MinSilenceMS: 500,
			MinSpeechMS:  100,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_ASR_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_ASR_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_ASR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_ASR_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_ASR_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_ASR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_ASR_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_ASR_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "LOQA_ASR_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_ASR_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_ASR_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_ASR_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_ASR_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_ASR_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_ASR_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_ASR_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_ASR_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_ASR_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_ASR_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_ASR_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_ASR_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.ASR.Engine, "LOQA_ASR_ENGINE")
	overrideString(&cfg.ASR.Language, "LOQA_ASR_LANGUAGE")
	overrideInt(&cfg.ASR.SampleRate, "LOQA_ASR_SAMPLE_RATE")
	overrideInt(&cfg.ASR.Channels, "LOQA_ASR_CHANNELS")
	overrideInt(&cfg.ASR.TimeoutSec, "LOQA_ASR_TIMEOUT_SEC")
	overrideString(&cfg.ASR.Command, "LOQA_ASR_COMMAND")
	overrideString(&cfg.ASR.ModelPath, "LOQA_ASR_MODEL_PATH")
	overrideString(&cfg.ASR.ScorerPath, "LOQA_ASR_SCORER_PATH")
	overrideString(&cfg.Delegated.Binary, "LOQA_ASR_DELEGATED_BINARY")
	overrideString(&cfg.Delegated.AssistantDir, "LOQA_ASR_DELEGATED_ASSISTANT_DIR")
	overrideString(&cfg.Delegated.BrokerHost, "LOQA_ASR_DELEGATED_BROKER_HOST")
	overrideInt(&cfg.Delegated.BrokerPort, "LOQA_ASR_DELEGATED_BROKER_PORT")
	overrideString(&cfg.Delegated.BrokerUsername, "LOQA_ASR_DELEGATED_BROKER_USERNAME")
	overrideString(&cfg.Delegated.BrokerPassword, "LOQA_ASR_DELEGATED_BROKER_PASSWORD")
	overrideString(&cfg.Delegated.BrokerTLSFile, "LOQA_ASR_DELEGATED_BROKER_TLS_FILE")
	overrideString(&cfg.Delegated.ModelDir, "LOQA_ASR_DELEGATED_MODEL_DIR")
	overrideBool(&cfg.Delegated.Partial, "LOQA_ASR_DELEGATED_PARTIAL")
	overrideBool(&cfg.Delegated.AutoRestart, "LOQA_ASR_DELEGATED_AUTO_RESTART")
	overrideInt(&cfg.Delegated.MaxRestarts, "LOQA_ASR_DELEGATED_MAX_RESTARTS")
	overrideInt(&cfg.Delegated.RestartBackoffMS, "LOQA_ASR_DELEGATED_RESTART_BACKOFF_MS")
	overrideString(&cfg.Delegated.ConflictingUnit, "LOQA_ASR_DELEGATED_CONFLICTING_UNIT")
	overrideBool(&cfg.VAD.Enabled, "LOQA_ASR_VAD_ENABLED")
	overrideString(&cfg.VAD.ModelPath, "LOQA_ASR_VAD_MODEL_PATH")
	overrideInt(&cfg.VAD.MinSilenceMS, "LOQA_ASR_VAD_MIN_SILENCE_MS")
	overrideInt(&cfg.VAD.MinSpeechMS, "LOQA_ASR_VAD_MIN_SPEECH_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.ASR.Engine {
	case "mock", "embedded", "delegated":
	default:
		return errors.New("asr.engine must be one of mock|embedded|delegated")
	}
	if cfg.ASR.Language == "" {
		return errors.New("asr.language must not be empty")
	}
	if cfg.ASR.SampleRate <= 0 {
		return errors.New("asr.sample_rate must be positive")
	}
	if cfg.ASR.Channels <= 0 {
		return errors.New("asr.channels must be positive")
	}
	if cfg.ASR.TimeoutSec <= 0 {
		return errors.New("asr.timeout_sec must be positive")
	}
	if cfg.ASR.Engine == "embedded" && cfg.ASR.Command == "" {
		return errors.New("asr.command must be set when engine=embedded")
	}
	if cfg.ASR.Engine == "delegated" {
		if cfg.Delegated.Binary == "" {
			return errors.New("delegated.binary must not be empty when engine=delegated")
		}
		if cfg.Delegated.BrokerHost == "" {
			return errors.New("delegated.broker_host must not be empty when engine=delegated")
		}
		if cfg.Delegated.BrokerPort <= 0 || cfg.Delegated.BrokerPort > 65535 {
			return errors.New("delegated.broker_port must be between 1 and 65535")
		}
		if cfg.Delegated.MaxRestarts < 0 {
			return errors.New("delegated.max_restarts must be >= 0")
		}
		if cfg.Delegated.RestartBackoffMS < 0 {
			return errors.New("delegated.restart_backoff_ms must be >= 0")
		}
	}
	if cfg.VAD.Enabled {
		if cfg.VAD.ModelPath == "" {
			return errors.New("vad.model_path must not be empty when vad is enabled")
		}
		if cfg.VAD.Threshold <= 0 || cfg.VAD.Threshold >= 1 {
			return errors.New("vad.threshold must be within (0, 1)")
		}
	}
	return nil
}
