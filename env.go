package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/netwatcherio/netwatcher-diag/probes"
	"github.com/netwatcherio/netwatcher-diag/workers"
)

const (
	defaultConfig = "LISTEN_ADDR=:8080\nLOG_LEVEL=info\nLOG_FORMAT=text\nTHROUGHPUT_SOURCE=static\nDNS_SERVER=system\n"
)

const VERSION = "0.1.0"

type Config struct {
	ListenAddr       string        `mapstructure:"LISTEN_ADDR"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	LogFormat        string        `mapstructure:"LOG_FORMAT"`
	ProbeTimeout     time.Duration `mapstructure:"PROBE_TIMEOUT"`
	TransferDuration time.Duration `mapstructure:"TRANSFER_DURATION"`
	TransferBytes    int64         `mapstructure:"TRANSFER_BYTES"`
	ThroughputSource string        `mapstructure:"THROUGHPUT_SOURCE"`
	DownloadURL      string        `mapstructure:"DOWNLOAD_URL"`
	UploadURL        string        `mapstructure:"UPLOAD_URL"`
	DNSServer        string        `mapstructure:"DNS_SERVER"`
	DNSTimeout       time.Duration `mapstructure:"DNS_TIMEOUT"`
	PingTimeout      time.Duration `mapstructure:"PING_TIMEOUT"`
	PingCount        int           `mapstructure:"PING_COUNT"`
	SerializeProbes  bool          `mapstructure:"SERIALIZE_PROBES"`
}

var configKeys = map[string]interface{}{
	"LISTEN_ADDR":       ":8080",
	"LOG_LEVEL":         "info",
	"LOG_FORMAT":        "text",
	"PROBE_TIMEOUT":     probes.DefaultProbeTimeout,
	"TRANSFER_DURATION": probes.DefaultTransferDuration,
	"TRANSFER_BYTES":    int64(probes.DefaultTransferBytes),
	"THROUGHPUT_SOURCE": "static",
	"DOWNLOAD_URL":      "",
	"UPLOAD_URL":        "",
	"DNS_SERVER":        "system",
	"DNS_TIMEOUT":       probes.DefaultDNSTimeout,
	"PING_TIMEOUT":      probes.DefaultPingTimeout,
	"PING_COUNT":        3,
	"SERIALIZE_PROBES":  false,
}

// loadConfig creates configFile with defaults when missing, loads it into
// the environment and decodes the environment into a Config.
func loadConfig(configFile string) (*Config, error) {
	_, err := os.Stat(configFile)
	if errors.Is(err, os.ErrNotExist) {
		log.Infof("config file '%s' does not exist, creating one now", configFile)
		if err := os.WriteFile(configFile, []byte(defaultConfig), 0644); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	if err := godotenv.Load(configFile); err != nil {
		return nil, err
	}

	v := viper.New()
	for key, def := range configKeys {
		v.SetDefault(key, def)
		// AutomaticEnv only resolves keys viper already knows about
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	switch strings.ToLower(c.ThroughputSource) {
	case "static", "ookla":
	default:
		return fmt.Errorf("THROUGHPUT_SOURCE must be static or ookla, got %q", c.ThroughputSource)
	}
	if (c.DownloadURL == "") != (c.UploadURL == "") {
		return errors.New("DOWNLOAD_URL and UPLOAD_URL must be set together")
	}
	if c.ProbeTimeout <= 0 || c.TransferDuration <= 0 || c.TransferBytes <= 0 {
		return errors.New("PROBE_TIMEOUT, TRANSFER_DURATION and TRANSFER_BYTES must be positive")
	}
	return nil
}

func setupLogging(cfg *Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if strings.EqualFold(cfg.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func (c *Config) endpointSource() probes.EndpointSource {
	if strings.EqualFold(c.ThroughputSource, "ookla") {
		return probes.OoklaEndpoints{}
	}
	if c.DownloadURL != "" {
		return probes.StaticEndpoints{{
			Name:        "configured",
			DownloadURL: c.DownloadURL,
			UploadURL:   c.UploadURL,
		}}
	}
	return probes.DefaultEndpoints
}

func buildDispatcher(cfg *Config) *workers.Dispatcher {
	speed := probes.NewThroughputProber(cfg.endpointSource())
	speed.Timeout = cfg.ProbeTimeout
	speed.TransferDuration = cfg.TransferDuration
	speed.TransferBytes = cfg.TransferBytes

	analyzer := probes.NewURLAnalyzer(
		probes.NewResolver(cfg.DNSServer, cfg.DNSTimeout),
		probes.NewICMPProber(cfg.PingCount, cfg.PingTimeout),
	)
	analyzer.DNSTimeout = cfg.DNSTimeout
	analyzer.ProbeTimeout = cfg.PingTimeout

	d := workers.NewDispatcher(speed, analyzer)
	d.Serialize = cfg.SerializeProbes
	return d
}
