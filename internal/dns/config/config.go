package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of every environment variable the agent reads.
const EnvPrefix = "NFQ_"

// AppConfig holds the agent configuration. Values are layered: struct defaults,
// then an optional YAML file, then environment variables.
type AppConfig struct {
	// Env is the runtime environment, either "dev" or "prod".
	Env       string          `koanf:"env" validate:"required,oneof=dev prod"`
	Log       LoggingConfig   `koanf:"log" validate:"required"`
	Queue     QueueConfig     `koanf:"queue" validate:"required"`
	Filter    FilterConfig    `koanf:"filter" validate:"required"`
	Blocklist BlocklistConfig `koanf:"blocklist" validate:"required"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// LoggingConfig controls log verbosity: "debug", "info", "warn", or "error".
type LoggingConfig struct {
	Level string `koanf:"level" validate:"required,oneof=debug info warn error"`
}

// QueueConfig describes the NFQUEUE binding.
type QueueConfig struct {
	Num          uint16        `koanf:"num"`
	MaxPacketLen uint32        `koanf:"max_packet_len" validate:"gte=1"`
	MaxQueueLen  uint32        `koanf:"max_queue_len" validate:"gte=1"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gte=0"`
	// FailOpen asks the kernel to accept packets instead of dropping them
	// when the queue is full.
	FailOpen bool `koanf:"fail_open"`
}

// FilterConfig selects the scheduling strategy and inspection parameters.
type FilterConfig struct {
	Strategy        string  `koanf:"strategy" validate:"required,oneof=sequential spawn pool dispatch"`
	Workers         int     `koanf:"workers" validate:"gte=1,lte=1024"`
	Backlog         int     `koanf:"backlog" validate:"gte=1"`
	Backpressure    string  `koanf:"backpressure" validate:"required,oneof=block bypass drop"`
	SkipProbability float64 `koanf:"skip_probability" validate:"gte=0,lte=1"`
	NameBuffer      int     `koanf:"name_buffer" validate:"gte=1,lte=4096"`
}

// BlocklistConfig describes where rules come from and how they are stored.
type BlocklistConfig struct {
	Domains         []string `koanf:"domains"`
	Files           []string `koanf:"files" validate:"dive,required"`
	Store           string   `koanf:"store" validate:"required,oneof=memory bolt"`
	DB              string   `koanf:"db" validate:"required_if=Store bolt"`
	CacheSize       int      `koanf:"cache_size" validate:"gte=0"`
	FPRate          float64  `koanf:"fp_rate" validate:"gt=0,lt=1"`
	FoldCase        bool     `koanf:"fold_case"`
	TrimTrailingDot bool     `koanf:"trim_trailing_dot"`
}

// MetricsConfig enables the Prometheus exporter when Listen is set.
type MetricsConfig struct {
	Listen string `koanf:"listen" validate:"omitempty,host_port"`
	Path   string `koanf:"path" validate:"required,startswith=/"`
}

// DEFAULT_APP_CONFIG defines the default configuration: dispatch strategy with
// four workers, inspect every DNS packet, in-memory blocklist, metrics disabled.
var DEFAULT_APP_CONFIG = AppConfig{
	Env: "prod",
	Log: LoggingConfig{Level: "info"},
	Queue: QueueConfig{
		Num:          0,
		MaxPacketLen: 0xFFFF,
		MaxQueueLen:  0xFFFF,
		WriteTimeout: 15 * time.Millisecond,
		FailOpen:     true,
	},
	Filter: FilterConfig{
		Strategy:        "dispatch",
		Workers:         4,
		Backlog:         1024,
		Backpressure:    "block",
		SkipProbability: 0,
		NameBuffer:      256,
	},
	Blocklist: BlocklistConfig{
		Domains:         []string{},
		Files:           []string{},
		Store:           "memory",
		DB:              "/var/lib/nfq-dnsfilter/blocklist.db",
		CacheSize:       1000,
		FPRate:          0.01,
		FoldCase:        true,
		TrimTrailingDot: true,
	},
	Metrics: MetricsConfig{
		Listen: "",
		Path:   "/metrics",
	},
}

// validHostPort validates "host:port" where host may be empty (all interfaces),
// an IP address or a hostname, and port is 1-65535.
func validHostPort(fl validator.FieldLevel) bool {
	addr := fl.Field().String()
	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if strings.ContainsAny(host, " /") {
		return false
	}
	portNum, err := strconv.ParseUint(port, 10, 16)
	return err == nil && portNum > 0
}

// defaultLoader loads DEFAULT_APP_CONFIG through the structs provider.
var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DEFAULT_APP_CONFIG, "koanf"), nil)
}

// fileLoader merges a YAML file over the defaults.
var fileLoader = func(k *koanf.Koanf, path string) error {
	return k.Load(file.Provider(path), yaml.Parser())
}

// envLoader loads NFQ_* variables. Keys are matched against the keys already
// known from the defaults, so NFQ_BLOCKLIST_CACHE_SIZE resolves to
// blocklist.cache_size; unknown variables are ignored. Values containing spaces
// or commas become lists.
var envLoader = func(k *koanf.Koanf) error {
	known := envKeyMap(k.Keys())
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
			path, ok := known[key]
			if !ok {
				return "", nil
			}
			value = strings.TrimSpace(value)

			if value == "" {
				return path, value
			}

			if strings.Contains(value, " ") || strings.Contains(value, ",") {
				parts := strings.FieldsFunc(value, func(r rune) bool {
					return r == ' ' || r == ','
				})
				return path, parts
			}

			return path, value
		},
	}), nil)
}

// envKeyMap maps flattened env names ("filter_skip_probability") to koanf
// paths ("filter.skip_probability").
func envKeyMap(keys []string) map[string]string {
	m := make(map[string]string, len(keys))
	for _, k := range keys {
		m[strings.ReplaceAll(k, ".", "_")] = k
	}
	return m
}

// registerValidation registers the custom "host_port" tag.
var registerValidation = func(v *validator.Validate) error {
	return v.RegisterValidation("host_port", validHostPort)
}

// Load builds the configuration from defaults, the optional YAML file at path
// (skipped when path is empty) and the environment, then validates it.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("error loading default config: %w", err)
	}

	if path != "" {
		if err := fileLoader(k, path); err != nil {
			return nil, fmt.Errorf("error loading config file %q: %w", path, err)
		}
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := registerValidation(validate); err != nil {
		return nil, fmt.Errorf("error registering validation: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
