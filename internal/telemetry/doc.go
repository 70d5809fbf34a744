// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑：Setup 安装全局
// TracerProvider 与 MeterProvider 并返回统一的 ShutdownFunc。采样为
// parent-based，图运行时的逐步 span 跟随宿主调用方的采样决定。
// 当遥测功能禁用时不连接任何外部服务，全局 provider 保持 noop。
package telemetry
