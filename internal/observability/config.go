package observability

import (
	"strings"

	"github.com/smallbiznis/songgift/internal/config"
)

const (
	formatJSON    = "json"
	formatConsole = "console"
)

// Config is the resolved observability view of the application config.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Role        string
	Production  bool

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "songgift"
	}
	obs := cfg.Observability

	level := obs.LogLevel
	if level == "" {
		level = "info"
	}
	format := obs.LogFormat
	if format == "" {
		format = formatConsole
		if cfg.IsProduction() {
			format = formatJSON
		}
	}
	protocol := obs.OtelProtocol
	if protocol == "" {
		protocol = "grpc"
	}
	ratio := obs.SamplingRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		Role:                 strings.TrimSpace(cfg.Role),
		Production:           cfg.IsProduction(),
		LogLevel:             level,
		LogFormat:            format,
		OtelEnabled:          obs.OtelEnabled,
		OtelExporterEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
		OtelExporterProtocol: protocol,
		OtelSamplingRatio:    ratio,
	}
}

// Debug is on outside production or when the level asks for it.
func (c Config) Debug() bool {
	return !c.Production || c.LogLevel == "debug"
}
