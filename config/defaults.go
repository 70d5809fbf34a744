// =============================================================================
// 📦 graphflow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Process:   DefaultProcessConfig(),
		LLM:       DefaultLLMConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultProcessConfig 返回默认图运行时配置
func DefaultProcessConfig() ProcessConfig {
	return ProcessConfig{
		MaxVisitsPerNode: 50,
		MaxReactSteps:    6,
		UTCPTimeout:      30 * time.Second,
	}
}

// DefaultLLMConfig 返回默认 LLM 配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		DefaultProvider: "anthropic",
		APIKey:          "",
		BaseURL:         "",
		Timeout:         2 * time.Minute,
		MaxRetries:      3,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "graphflow",
		SampleRate:   0.1,
	}
}
