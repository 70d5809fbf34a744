// =============================================================================
// graphctl 主入口
// =============================================================================
// 加载进程定义 → 构建引擎 → 运行 → 打印最终状态
// =============================================================================
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dmoreira/graphflow"
	"github.com/dmoreira/graphflow/config"
	"github.com/dmoreira/graphflow/internal/metrics"
	"github.com/dmoreira/graphflow/internal/telemetry"
	"github.com/dmoreira/graphflow/llmclient"
	"github.com/dmoreira/graphflow/llmclient/anthropic"
)

func main() {
	var (
		configPath  = flag.String("config", "", "engine configuration file (YAML); defaults + env vars apply without it")
		processPath = flag.String("process", "", "process definition file (YAML, required)")
		contextPath = flag.String("context", "", "initial context (JSON file, or '-' for stdin); empty means {}")
	)
	flag.Parse()

	if *processPath == "" {
		fmt.Fprintln(os.Stderr, "graphctl: -process is required")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.NewLoader().WithConfigPath(*configPath).WithValidator((*config.Config).Validate).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphctl: load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphctl: build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	telemetryShutdown, err := telemetry.Setup(context.Background(), cfg.Telemetry, logger)
	if err != nil {
		logger.Fatal("init telemetry", zap.Error(err))
	}
	defer telemetryShutdown(context.Background())

	initialContext, err := readInitialContext(*contextPath)
	if err != nil {
		logger.Fatal("read initial context", zap.Error(err))
	}

	eng, err := graphflow.Load(*processPath,
		graphflow.WithProvider(buildProvider(cfg, logger)),
		graphflow.WithLogger(logger),
		graphflow.WithConfig(cfg),
		graphflow.WithCollector(metrics.NewCollector("graphflow", logger)),
	)
	if err != nil {
		logger.Fatal("invalid process definition", zap.Error(err))
	}

	// Ctrl-C 触发协作式取消：当前 Agent 跑完后优雅收尾。
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	final := eng.Run(ctx, initialContext)

	out, err := json.MarshalIndent(final, "", "  ")
	if err != nil {
		logger.Fatal("encode final state", zap.Error(err))
	}
	fmt.Println(string(out))
}

// buildProvider 按 llm.default_provider 选择模型客户端实现。
func buildProvider(cfg *config.Config, logger *zap.Logger) llmclient.Provider {
	switch cfg.LLM.DefaultProvider {
	case "anthropic", "":
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Timeout: cfg.LLM.Timeout,
		}, logger)
	default:
		logger.Fatal("unknown llm.default_provider", zap.String("provider", cfg.LLM.DefaultProvider))
		return nil
	}
}

func readInitialContext(path string) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse initial context: %w", err)
	}
	return out, nil
}

// buildLogger 按 LogConfig 构造 zap logger。
func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(cfg.OutputPaths) > 0 {
		zc.OutputPaths = cfg.OutputPaths
	}
	zc.DisableCaller = !cfg.EnableCaller
	zc.DisableStacktrace = !cfg.EnableStacktrace

	return zc.Build()
}
