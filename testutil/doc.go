// Copyright (c) graphflow Authors.
// Licensed under the MIT License.

/*
Package testutil 提供 graphflow 测试的共享工具和辅助函数。

# 概述

testutil 包为 process/* 与根包的测试提供统一的辅助能力，避免各包重复
实现相似的测试基础设施。

# 子包

  - testutil/mocks: MockProvider，一个可脚本化的 llmclient.Provider 测
    试替身，支持固定响应、逐次响应脚本与调用次数失败注入 -- 用于驱动
    端到端场景测试（REFINAR/REFINAR/APROVADO 序列等）。

# 使用示例

	provider := mocks.NewMockProvider().WithResponse("hello")
	resp, err := provider.Completion(ctx, req)
*/
package testutil
