package llm

import "github.com/auricle-ai/auricle/pkg/types"

func toolCall(args string) types.ToolCall {
	return types.ToolCall{ID: "call_1", Name: "test_tool", Arguments: args}
}
