// Package config 提供 graphflow 进程运行时的配置管理功能。
//
// 配置来源按优先级叠加：默认值 → YAML 文件 → 环境变量。核心引擎本身不
// 规定任何持久化或传输层，因此这里只保留驱动 DSL 加载器、图运行时与
// 模型客户端真正用到的字段（循环守卫上限、ReAct 步数上限、超时、日志
// 与遥测开关），其余字段（服务器端口、数据库、缓存等）属于外部宿主应用
// 的关注点，不在本包中。
package config
