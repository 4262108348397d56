package llm

import (
	"context"
	"encoding/json"
)

// 消息角色，与 Chat Completions 的约定一致。
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message 是发送给大模型的一条上下文消息。
type Message struct {
	Role    string
	Content string
}

// ToolSpec 描述一个可供大模型调用的工具。Parameters 是 JSON Schema 对象。
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolExecutor 负责执行大模型请求的工具调用。
type ToolExecutor interface {
	Execute(ctx context.Context, name string, params map[string]any) (any, error)
}

// ToolResult 记录一次工具调用的输入与输出。
type ToolResult struct {
	CallID    string
	Name      string
	Arguments json.RawMessage
	Output    any
	Err       error
}

// Step 描述一次完成的推理步骤。
type Step struct {
	Index       int
	Text        string
	ToolResults []ToolResult
}

// Request 描述一次带工具的生成请求。
type Request struct {
	Messages []Message
	Tools    []ToolSpec
	Executor ToolExecutor
	// MaxSteps 限制模型调用的次数，小于等于 0 时使用实现的默认值。
	MaxSteps int
	// OnStep 在每个步骤结束后被调用，可以为空。
	OnStep func(Step)
}

// Response 是一次生成的最终结果。
type Response struct {
	Text  string
	Steps int
	// Truncated 表示达到步数上限时模型仍在请求工具。
	Truncated bool
}

// Generator 定义了调用大模型的统一接口。
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// GeneratorFunc 允许使用普通函数实现 Generator。
type GeneratorFunc func(ctx context.Context, req Request) (*Response, error)

// Generate 实现 Generator。
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
