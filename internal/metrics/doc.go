// 版权所有 2026 graphflow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
LLM 调用、Agent 执行与图运行时三大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion），
    按 provider/model 分组。
  - Agent 指标：执行总数、执行耗时，按 agent/kind 分组。
  - 图运行时指标：运行总数（按终止原因）、步进总数、节点间转换
    计数、循环守卫触发计数，按 process 分组。
*/
package metrics
