package tools

import (
	"context"
	"sync"

	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/llm"
)

// Registry 维护工具名称到实现的映射，并保留注册顺序。
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	order     []string
	validator Validator
}

// NewRegistry 创建使用默认校验器的注册表。
func NewRegistry() *Registry {
	return &Registry{
		tools:     make(map[string]Tool),
		validator: DefaultValidator{},
	}
}

// Register 注册工具，名称为空或重复时返回错误。
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "tool is nil")
	}
	name := tool.Name()
	if name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "tool name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return xerrors.New(xerrors.CodeInvalidArgument, "tool "+name+" already registered")
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get 按名称查找工具。
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "tool "+name+" not found")
	}
	return tool, nil
}

// List 按注册顺序返回全部工具。
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// SetValidator 替换执行前使用的校验器。
func (r *Registry) SetValidator(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validator = v
}

// Specs 生成发送给模型的工具定义。
func (r *Registry) Specs() []llm.ToolSpec {
	list := r.List()
	specs := make([]llm.ToolSpec, 0, len(list))
	for _, tool := range list {
		specs = append(specs, llm.ToolSpec{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema().Map(),
		})
	}
	return specs
}

// Execute 校验参数后执行工具，实现 llm.ToolExecutor。
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (interface{}, error) {
	tool, err := r.Get(name)
	if err != nil {
		return nil, err
	}

	if schema := tool.Schema(); schema != nil {
		r.mu.RLock()
		validator := r.validator
		r.mu.RUnlock()
		if validator != nil {
			if err := validator.Validate(params, schema); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "tool "+name+" validation failed",
					xerrors.WithMetadata("tool", name))
			}
		}
	}

	return tool.Execute(ctx, params)
}
