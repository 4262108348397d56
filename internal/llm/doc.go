// Package llm defines the provider-neutral contract for tool-augmented
// generation. A Generator drives the model for a bounded number of steps,
// executing tool calls through a ToolExecutor between steps, and returns
// the model's final text.
package llm
