// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// This package defines common types, interfaces, and utilities that allow the orchestration
// loop to work with multiple LLM providers (OpenAI, Anthropic, Ollama) without being
// tightly coupled to any specific provider's SDK.
//
// # Core Concepts
//
//  1. Messages: The Message type is a tagged variant over the roles system, user,
//     assistant and tool. Assistant messages carry text and tool use blocks; tool
//     messages carry exactly one tool result answering a tool call id.
//
//  2. Tools: The ToolSpec type represents a tool definition that can be provided to an LLM,
//     and ToolUseBlock/ToolResultBlock represent tool invocations and their results.
//     Tool arguments are kept as raw JSON so that malformed model output reaches the
//     skill invoker intact and can be reported as a validation failure.
//
//  3. Client Interface: The Client interface provides Synchronous() for completion calls.
//     Implementations normalise the stop reason to "stop", "tool_calls" or "max_tokens".
//
//  4. Middleware: The Middleware interface allows adding cross-cutting
//     concerns like logging without modifying provider implementations.
//
//  5. Errors: The Error type provides provider-neutral error handling with support for
//     rate limits, retryable errors, and provider-specific error details.
//
// Usage Example
//
//	client := llm.WrapWithMiddleware(baseClient, loggingMiddleware)
//
//	req := &llm.Request{
//	    Model: "gpt-4",
//	    Messages: []llm.Message{
//	        llm.NewTextMessage(llm.RoleUser, "Hello!"),
//	    },
//	}
//
//	resp, err := client.Synchronous(ctx, req)
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Client interface
//  2. Translate between provider-specific types and llm package types
//  3. Map HTTP failures with NewStatusError and transport failures with NewTransportError
package llm
