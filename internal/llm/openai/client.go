package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/llm"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultMaxSteps  = 10
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// MaxRetries 为 SDK 内部的重试次数，负数表示使用 SDK 默认值。
	MaxRetries int
	HTTPClient *http.Client
}

// Client 基于 openai-go 实现带工具调用的多步生成。
type Client struct {
	client openaiChat
	model  string
}

type openaiChat interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, xerrors.New(xerrors.CodeMissingCredential, "未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// 未配置超时时不限制请求时长，由调用方通过 ctx 取消。
		httpClient = newHTTPClient(cfg.Timeout)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
	}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}

	client := sdk.NewClient(opts...)
	return &Client{client: &client.Chat.Completions, model: model}, nil
}

// Model 返回当前使用的模型名称。
func (c *Client) Model() string {
	return c.model
}

// Generate 循环调用模型，直到模型不再请求工具或达到步数上限。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if len(req.Messages) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "messages are required")
	}

	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+maxSteps*2)
	for _, msg := range req.Messages {
		param, err := toMessageParam(msg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, param)
	}

	params := sdk.ChatCompletionNewParams{
		Model:    sdk.ChatModel(c.model),
		Messages: messages,
	}
	if len(req.Tools) > 0 && req.Executor != nil {
		params.Tools = toToolParams(req.Tools)
	}

	var lastText string
	for step := 1; step <= maxSteps; step++ {
		completion, err := c.client.New(ctx, params)
		if err != nil {
			return nil, wrapAPIError(err)
		}
		if len(completion.Choices) == 0 {
			return nil, xerrors.New(xerrors.CodeModelFailure, "OpenAI 响应中没有有效的 choices")
		}

		message := completion.Choices[0].Message
		lastText = strings.TrimSpace(message.Content)

		if len(message.ToolCalls) == 0 {
			notify(req.OnStep, llm.Step{Index: step, Text: lastText})
			return &llm.Response{Text: lastText, Steps: step}, nil
		}

		params.Messages = append(params.Messages, message.ToParam())
		results := make([]llm.ToolResult, 0, len(message.ToolCalls))
		for _, call := range message.ToolCalls {
			result := c.runTool(ctx, req.Executor, call.ID, call.Function.Name, call.Function.Arguments)
			results = append(results, result)
			params.Messages = append(params.Messages, sdk.ToolMessage(encodeToolOutput(result), call.ID))
		}
		notify(req.OnStep, llm.Step{Index: step, Text: lastText, ToolResults: results})

		if err := ctx.Err(); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "生成被取消")
		}
	}

	return &llm.Response{Text: lastText, Steps: maxSteps, Truncated: true}, nil
}

func (c *Client) runTool(ctx context.Context, executor llm.ToolExecutor, callID, name, rawArgs string) llm.ToolResult {
	result := llm.ToolResult{CallID: callID, Name: name, Arguments: json.RawMessage(rawArgs)}
	if strings.TrimSpace(rawArgs) == "" {
		result.Arguments = json.RawMessage("{}")
	}

	params := map[string]any{}
	if err := json.Unmarshal(result.Arguments, &params); err != nil {
		result.Err = xerrors.Wrap(xerrors.CodeInvalidArgument, err, "工具参数不是合法的 JSON 对象")
		return result
	}
	if executor == nil {
		result.Err = xerrors.New(xerrors.CodeToolFailure, "未配置工具执行器")
		return result
	}

	output, err := executor.Execute(ctx, name, params)
	if err != nil {
		result.Err = err
		return result
	}
	result.Output = output
	return result
}

// encodeToolOutput 将工具结果编码为 JSON 文本，错误同样作为结果返回给模型。
func encodeToolOutput(result llm.ToolResult) string {
	var payload any = result.Output
	if result.Err != nil {
		payload = map[string]string{"error": result.Err.Error()}
	}
	if s, ok := payload.(string); ok {
		return s
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, "encode tool output: "+err.Error())
	}
	return string(encoded)
}

func toMessageParam(msg llm.Message) (sdk.ChatCompletionMessageParamUnion, error) {
	switch strings.ToLower(strings.TrimSpace(msg.Role)) {
	case llm.RoleSystem:
		return sdk.SystemMessage(msg.Content), nil
	case llm.RoleUser:
		return sdk.UserMessage(msg.Content), nil
	case llm.RoleAssistant:
		return sdk.AssistantMessage(msg.Content), nil
	default:
		return sdk.ChatCompletionMessageParamUnion{}, xerrors.New(xerrors.CodeInvalidArgument, "unsupported role: "+msg.Role)
	}
}

func toToolParams(specs []llm.ToolSpec) []sdk.ChatCompletionToolUnionParam {
	tools := make([]sdk.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		parameters := spec.Parameters
		if parameters == nil {
			parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, sdk.ChatCompletionFunctionTool(sdk.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: sdk.String(spec.Description),
			Parameters:  sdk.FunctionParameters(parameters),
		}))
	}
	return tools
}

func wrapAPIError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "大模型调用被取消")
	}
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return xerrors.Wrap(xerrors.CodeModelFailure, err, fmt.Sprintf("OpenAI 返回错误状态 %d", apiErr.StatusCode))
	}
	return xerrors.Wrap(xerrors.CodeModelFailure, err, "请求 OpenAI 失败")
}

func notify(fn func(llm.Step), step llm.Step) {
	if fn != nil {
		fn(step)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		return &http.Client{}
	}
	return &http.Client{Timeout: timeout}
}
