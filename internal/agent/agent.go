package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"ChainCart/internal/conversation"
	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/llm"
	"ChainCart/internal/prompt"

	"charm.land/lipgloss/v2"
)

const (
	welcomeText  = "👋 Welcome! How can I assist you with your shopping today?"
	exitHintText = "Type 'exit' to end the conversation."
	farewellText = "\n👋 Thanks for shopping with us! Have a great day!"
	promptText   = "You: "
	exitCommand  = "exit"

	// defaultMaxSteps 是单轮对话允许的模型调用次数。
	defaultMaxSteps = 10
)

// CodeInputFailure 表示终端输入无法继续读取。
const CodeInputFailure xerrors.Code = "INPUT_FAILURE"

func init() {
	xerrors.Register(CodeInputFailure, xerrors.Attributes{
		Message:  "failed to read user input",
		Severity: xerrors.SeverityCritical,
	})
}

var (
	assistantLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	errorLabel     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	toolLabel      = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// ToolSet 是对话循环向模型暴露的工具集合。
type ToolSet interface {
	llm.ToolExecutor
	Specs() []llm.ToolSpec
}

// Agent 驱动一次终端会话。会话记录只由 Agent 持有。
type Agent struct {
	generator llm.Generator
	tools     ToolSet
	policy    prompt.Policy
	store     *conversation.Store
	maxSteps  int
	in        io.Reader
	out       io.Writer
	errOut    io.Writer
	logger    *slog.Logger
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithTools 配置模型可调用的工具。
func WithTools(tools ToolSet) Option {
	return func(a *Agent) {
		a.tools = tools
	}
}

// WithPolicy 替换默认的购物策略。
func WithPolicy(policy prompt.Policy) Option {
	return func(a *Agent) {
		a.policy = policy.WithDefaults()
	}
}

// WithMaxSteps 设置单轮对话的步数上限。
func WithMaxSteps(steps int) Option {
	return func(a *Agent) {
		if steps > 0 {
			a.maxSteps = steps
		}
	}
}

// WithInput 指定读取用户输入的来源。
func WithInput(r io.Reader) Option {
	return func(a *Agent) {
		if r != nil {
			a.in = r
		}
	}
}

// WithOutput 指定提示与回复的输出位置。
func WithOutput(w io.Writer) Option {
	return func(a *Agent) {
		if w != nil {
			a.out = w
		}
	}
}

// WithErrorOutput 指定单轮失败信息的输出位置。
func WithErrorOutput(w io.Writer) Option {
	return func(a *Agent) {
		if w != nil {
			a.errOut = w
		}
	}
}

// WithLogger 指定结构化日志。
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New 创建一个 Agent。
func New(generator llm.Generator, opts ...Option) *Agent {
	ag := &Agent{
		generator: generator,
		policy:    prompt.Default(),
		store:     conversation.NewStore(),
		maxSteps:  defaultMaxSteps,
		in:        os.Stdin,
		out:       os.Stdout,
		errOut:    os.Stderr,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	return ag
}

// History 返回当前会话记录的副本。
func (a *Agent) History() []conversation.Message {
	return a.store.Snapshot()
}

// Run 进入对话循环，直到用户输入 exit、输入结束或 ctx 被取消。
// 单轮失败只打印错误，不会终止循环；输入读取失败时返回 CodeInputFailure。
func (a *Agent) Run(ctx context.Context) error {
	if a.generator == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}

	fmt.Fprintln(a.out, welcomeText)
	fmt.Fprintln(a.out, exitHintText)
	fmt.Fprintln(a.out)

	done := make(chan struct{})
	defer a.releaseInput(done)

	lines := readLines(a.in, done)
	for {
		fmt.Fprint(a.out, promptText)

		var (
			line inputLine
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out)
			return ctx.Err()
		case line, ok = <-lines:
		}

		if ok && line.err != nil {
			fmt.Fprintln(a.out)
			a.logger.Error("读取输入失败", "error", line.err)
			return xerrors.Wrap(CodeInputFailure, line.err, "")
		}
		if !ok || strings.EqualFold(strings.TrimSpace(line.text), exitCommand) {
			fmt.Fprintln(a.out, farewellText)
			return nil
		}

		a.turn(ctx, line.text)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// releaseInput 停止后台读取，并在输入可关闭时关闭它。
func (a *Agent) releaseInput(done chan struct{}) {
	close(done)
	if closer, ok := a.in.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.Debug("关闭输入失败", "error", err)
		}
	}
}

// turn 处理一轮对话。失败时会话记录只保留本轮的用户消息。
func (a *Agent) turn(ctx context.Context, input string) {
	a.store.Append(conversation.NewMessage(conversation.RoleUser, input))

	req := llm.Request{
		Messages: a.messages(),
		MaxSteps: a.maxSteps,
		OnStep:   a.printStep,
	}
	if a.tools != nil {
		req.Tools = a.tools.Specs()
		req.Executor = a.tools
	}

	resp, err := a.generator.Generate(ctx, req)
	if err != nil {
		a.logger.Log(ctx, xerrors.LogLevel(err), "本轮对话失败",
			"error", err, "code", xerrors.CodeOf(err), "retryable", xerrors.RetryableError(err))
		fmt.Fprintf(a.errOut, "%s %v\n", errorLabel.Render("Error:"), err)
		return
	}
	if resp.Truncated {
		a.logger.Warn("达到步数上限", "steps", resp.Steps, "max_steps", a.maxSteps)
	}

	a.store.Append(conversation.NewMessage(conversation.RoleAssistant, resp.Text))
	a.logger.Info("本轮对话完成", "steps", resp.Steps, "history", a.store.Len())
	fmt.Fprintf(a.out, "\n%s %s \n\n", assistantLabel.Render("Assistant:"), resp.Text)
}

// messages 构造发送给模型的上下文：系统提示词加上完整的会话记录。
func (a *Agent) messages() []llm.Message {
	history := a.store.Snapshot()
	out := make([]llm.Message, 0, len(history)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: a.policy.SystemPrompt()})
	for _, msg := range history {
		out = append(out, llm.Message{Role: string(msg.Role), Content: msg.Content})
	}
	return out
}

// printStep 回显一步中的工具结果。没有工具结果的步骤不输出，其文本由 Assistant 行给出。
func (a *Agent) printStep(step llm.Step) {
	if len(step.ToolResults) == 0 {
		return
	}
	for _, res := range step.ToolResults {
		var output string
		if res.Err != nil {
			output = "error: " + res.Err.Error()
		} else if data, err := json.Marshal(res.Output); err == nil {
			output = string(data)
		} else {
			output = fmt.Sprintf("%v", res.Output)
		}
		a.logger.Debug("工具调用完成", "step", step.Index, "tool", res.Name, "failed", res.Err != nil)
		fmt.Fprintf(a.out, "%s %s\n", toolLabel.Render("["+res.Name+"]"), output)
	}
}

type inputLine struct {
	text string
	err  error
}

// readLines 在后台逐行读取输入，行长度不受限制。输入结束时关闭通道，
// 读取出错时先发送错误再关闭。done 关闭后协程退出。
func readLines(r io.Reader, done <-chan struct{}) <-chan inputLine {
	lines := make(chan inputLine)
	go func() {
		defer close(lines)
		reader := bufio.NewReader(r)
		for {
			text, err := reader.ReadString('\n')
			if text != "" {
				select {
				case lines <- inputLine{text: strings.TrimRight(text, "\r\n")}:
				case <-done:
					return
				}
			}
			if err == nil {
				continue
			}
			if !errors.Is(err, io.EOF) {
				select {
				case lines <- inputLine{err: err}:
				case <-done:
				}
			}
			return
		}
	}()
	return lines
}
