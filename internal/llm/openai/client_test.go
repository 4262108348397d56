package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	xerrors "ChainCart/internal/errors"
	"ChainCart/internal/llm"
)

type recordingExecutor struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (r *recordingExecutor) Execute(_ context.Context, name string, params map[string]any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	if r.fail {
		return nil, errors.New("wallet offline")
	}
	return map[string]any{"address": "0xabc", "echo": params}, nil
}

func completion(message map[string]any) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       message,
		}},
	}
}

func toolCallMessage(id, name, args string) map[string]any {
	return map[string]any{
		"role":    "assistant",
		"content": "",
		"tool_calls": []map[string]any{{
			"id":   id,
			"type": "function",
			"function": map[string]any{
				"name":      name,
				"arguments": args,
			},
		}},
	}
}

func textMessage(text string) map[string]any {
	return map[string]any{"role": "assistant", "content": text}
}

type scriptedServer struct {
	mu       sync.Mutex
	replies  []map[string]any
	requests []map[string]any
	auth     []string
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.requests = append(s.requests, body)
	s.auth = append(s.auth, r.Header.Get("Authorization"))

	idx := len(s.requests) - 1
	if idx >= len(s.replies) {
		idx = len(s.replies) - 1
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(completion(s.replies[idx]))
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{
		APIKey:     "test",
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		HTTPClient: srv.Client(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	if err == nil {
		t.Fatalf("expected error when api key is missing")
	}
	if xerrors.CodeOf(err) != xerrors.CodeMissingCredential {
		t.Fatalf("unexpected code %s", xerrors.CodeOf(err))
	}
}

func TestHTTPClientTimeoutIsOptIn(t *testing.T) {
	for _, timeout := range []time.Duration{0, -time.Second} {
		if got := newHTTPClient(timeout).Timeout; got != 0 {
			t.Fatalf("expected no timeout for %v, got %v", timeout, got)
		}
	}
	if got := newHTTPClient(3 * time.Second).Timeout; got != 3*time.Second {
		t.Fatalf("expected configured timeout, got %v", got)
	}
}

func TestGeneratePlainText(t *testing.T) {
	script := &scriptedServer{replies: []map[string]any{textMessage("Hello! What would you like to buy?")}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	var steps []llm.Step
	resp, err := newTestClient(t, srv).Generate(context.Background(), llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "policy"},
			{Role: llm.RoleUser, Content: "hi"},
		},
		MaxSteps: 10,
		OnStep:   func(s llm.Step) { steps = append(steps, s) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Hello! What would you like to buy?" || resp.Steps != 1 || resp.Truncated {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(steps) != 1 || len(steps[0].ToolResults) != 0 {
		t.Fatalf("unexpected steps: %+v", steps)
	}

	if len(script.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(script.requests))
	}
	if script.auth[0] != "Bearer test" {
		t.Fatalf("authorization header missing: %q", script.auth[0])
	}
	body := script.requests[0]
	if body["model"] != defaultModelName {
		t.Fatalf("unexpected model %v", body["model"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(msgs))
	}
	if _, ok := body["tools"]; ok {
		t.Fatalf("tools must be omitted without an executor")
	}
}

func TestGenerateRunsToolsBetweenSteps(t *testing.T) {
	script := &scriptedServer{replies: []map[string]any{
		toolCallMessage("call_1", "get_wallet_address", `{}`),
		textMessage("Your wallet is 0xabc."),
	}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	executor := &recordingExecutor{}
	var steps []llm.Step
	resp, err := newTestClient(t, srv).Generate(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "what is my address?"}},
		Tools: []llm.ToolSpec{{
			Name:        "get_wallet_address",
			Description: "Returns the wallet address",
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		}},
		Executor: executor,
		OnStep:   func(s llm.Step) { steps = append(steps, s) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "Your wallet is 0xabc." || resp.Steps != 2 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(executor.calls) != 1 || executor.calls[0] != "get_wallet_address" {
		t.Fatalf("unexpected tool calls: %v", executor.calls)
	}
	if len(steps) != 2 || len(steps[0].ToolResults) != 1 || steps[0].ToolResults[0].Err != nil {
		t.Fatalf("unexpected steps: %+v", steps)
	}

	second := script.requests[1]
	msgs, _ := second["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("expected user, assistant tool call and tool result, got %d", len(msgs))
	}
	toolMsg, _ := msgs[2].(map[string]any)
	if toolMsg["role"] != "tool" || toolMsg["tool_call_id"] != "call_1" {
		t.Fatalf("unexpected tool message: %v", toolMsg)
	}
	if tools, _ := script.requests[0]["tools"].([]any); len(tools) != 1 {
		t.Fatalf("expected tool definitions in request")
	}
}

func TestToolErrorsAreReturnedToTheModel(t *testing.T) {
	script := &scriptedServer{replies: []map[string]any{
		toolCallMessage("call_1", "get_balance", `{}`),
		textMessage("Sorry, I could not read your balance."),
	}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	resp, err := newTestClient(t, srv).Generate(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "balance?"}},
		Tools:    []llm.ToolSpec{{Name: "get_balance"}},
		Executor: &recordingExecutor{fail: true},
	})
	if err != nil {
		t.Fatalf("tool failures must not fail the turn: %v", err)
	}
	if !strings.Contains(resp.Text, "could not") {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	msgs, _ := script.requests[1]["messages"].([]any)
	toolMsg, _ := msgs[len(msgs)-1].(map[string]any)
	content, _ := toolMsg["content"].(string)
	if !strings.Contains(content, "wallet offline") || !strings.Contains(content, `"error"`) {
		t.Fatalf("tool error not forwarded: %v", toolMsg["content"])
	}
}

func TestGenerateStopsAtMaxSteps(t *testing.T) {
	script := &scriptedServer{replies: []map[string]any{
		toolCallMessage("call_loop", "get_chain", `{}`),
	}}
	srv := httptest.NewServer(script)
	defer srv.Close()

	executor := &recordingExecutor{}
	resp, err := newTestClient(t, srv).Generate(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "loop"}},
		Tools:    []llm.ToolSpec{{Name: "get_chain"}},
		Executor: executor,
		MaxSteps: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Truncated || resp.Steps != 3 {
		t.Fatalf("expected truncated response after 3 steps: %+v", resp)
	}
	if len(script.requests) != 3 || len(executor.calls) != 3 {
		t.Fatalf("expected 3 model calls, got %d (tools %d)", len(script.requests), len(executor.calls))
	}
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Generate(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatalf("expected error for HTTP failure")
	}
	if xerrors.CodeOf(err) != xerrors.CodeModelFailure {
		t.Fatalf("unexpected code %s: %v", xerrors.CodeOf(err), err)
	}
}

func TestGenerateRejectsUnknownRole(t *testing.T) {
	srv := httptest.NewServer(&scriptedServer{replies: []map[string]any{textMessage("x")}})
	defer srv.Close()

	_, err := newTestClient(t, srv).Generate(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "narrator", Content: "hi"}},
	})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
