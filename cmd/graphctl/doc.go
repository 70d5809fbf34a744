// Copyright (c) graphflow Authors.
// Licensed under the MIT License.

/*
Package main 提供 graphctl 命令行入口。

# 概述

graphctl 加载一个 YAML 进程定义，对给定的初始上下文运行它，并将
最终状态以 JSON 打印到标准输出。模型客户端按配置中的
llm.default_provider 选择（当前内置 anthropic）。

# 使用方法

	graphctl -process process.yaml -context ctx.json
	cat ctx.json | graphctl -process process.yaml -context -
	graphctl -config graphflow.yaml -process process.yaml

退出码：0 运行完成（包括 quality.error 在内的运行期故障不改变退出
码）；1 定义校验失败或输入不可读。
*/
package main
