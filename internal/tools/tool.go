// Package tools 把钱包与结账能力包装成模型可调用的命名工具。
package tools

import "context"

// Schema 是工具参数所需的 JSON Schema 子集。
type Schema struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// Map 返回可直接发送给模型的参数描述。
func (s *Schema) Map() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	typ := s.Type
	if typ == "" {
		typ = "object"
	}
	props := s.Properties
	if props == nil {
		props = map[string]interface{}{}
	}
	out := map[string]interface{}{"type": typ, "properties": props}
	if len(s.Required) > 0 {
		out["required"] = append([]string(nil), s.Required...)
	}
	return out
}

// Tool 是一个可被模型调用的工具。
type Tool interface {
	Name() string
	Description() string
	Schema() *Schema
	Execute(ctx context.Context, params map[string]interface{}) (interface{}, error)
}

// Func 用函数快速定义工具。
type Func struct {
	ToolName        string
	ToolDescription string
	ToolSchema      *Schema
	Run             func(ctx context.Context, params map[string]interface{}) (interface{}, error)
}

func (f *Func) Name() string        { return f.ToolName }
func (f *Func) Description() string { return f.ToolDescription }
func (f *Func) Schema() *Schema     { return f.ToolSchema }

// Execute 调用 Run。
func (f *Func) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return f.Run(ctx, params)
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": description}
}
