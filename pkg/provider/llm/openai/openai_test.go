package openai

import (
	"testing"

	"github.com/auricle-ai/auricle/pkg/provider/llm"
	"github.com/auricle-ai/auricle/pkg/types"
)

// TestConvertMessage_System checks that system role is converted correctly.
func TestConvertMessage_System(t *testing.T) {
	msg := types.Message{Role: "system", Content: "You are helpful."}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfSystem == nil {
		t.Fatal("expected OfSystem to be set")
	}
}

// TestConvertMessage_User checks that user role is converted correctly.
func TestConvertMessage_User(t *testing.T) {
	msg := types.Message{Role: "user", Content: "Hello!"}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
}

// TestConvertMessage_Assistant checks that assistant role is converted.
func TestConvertMessage_Assistant(t *testing.T) {
	msg := types.Message{Role: "assistant", Content: "Hi there!"}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
}

// TestConvertMessage_AssistantToolCalls checks that assistant tool calls survive conversion.
func TestConvertMessage_AssistantToolCalls(t *testing.T) {
	msg := types.Message{
		Role: "assistant",
		ToolCalls: []types.ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: `{"city":"Berlin"}`},
		},
	}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
	if len(param.OfAssistant.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(param.OfAssistant.ToolCalls))
	}
	tc := param.OfAssistant.ToolCalls[0]
	if tc.ID != "call_1" {
		t.Errorf("expected ID call_1, got %q", tc.ID)
	}
	if tc.Function.Name != "get_weather" {
		t.Errorf("expected function get_weather, got %q", tc.Function.Name)
	}
}

// TestConvertMessage_Tool checks that tool role carries its call ID.
func TestConvertMessage_Tool(t *testing.T) {
	msg := types.Message{Role: "tool", Content: `{"temp": 21}`, ToolCallID: "call_1"}
	param, err := convertMessage(msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if param.OfTool == nil {
		t.Fatal("expected OfTool to be set")
	}
	if param.OfTool.ToolCallID != "call_1" {
		t.Errorf("expected tool call ID call_1, got %q", param.OfTool.ToolCallID)
	}
}

// TestConvertMessage_UnknownRole checks that unknown roles are rejected.
func TestConvertMessage_UnknownRole(t *testing.T) {
	msg := types.Message{Role: "narrator", Content: "Meanwhile..."}
	if _, err := convertMessage(msg); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// TestBuildParams checks that model, knobs, and tools are carried into SDK params.
func TestBuildParams(t *testing.T) {
	temp := 0.7
	p := &Provider{model: "gpt-4o"}
	params, err := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{
			{Role: "system", Content: "Be brief."},
			{Role: "user", Content: "Hi"},
		},
		Temperature: &temp,
		MaxTokens:   512,
		Tools: []types.ToolDefinition{
			{Name: "get_weather", Description: "Look up weather", Parameters: map[string]any{"type": "object"}},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(params.Model) != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(params.Messages))
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 512 {
		t.Errorf("expected max completion tokens 512, got %v", params.MaxCompletionTokens)
	}
	if len(params.Tools) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(params.Tools))
	}
	if params.Tools[0].Function.Name != "get_weather" {
		t.Errorf("expected tool get_weather, got %q", params.Tools[0].Function.Name)
	}
}

// TestBuildParams_BadRole checks that a bad message role fails param building.
func TestBuildParams_BadRole(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	_, err := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{{Role: "narrator", Content: "..."}},
	})
	if err == nil {
		t.Fatal("expected error for bad role")
	}
}

// TestNew_Validation checks constructor argument validation.
func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty apiKey")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
}

// TestNew_WithOptions checks that a fully configured provider constructs.
func TestNew_WithOptions(t *testing.T) {
	p, err := New("sk-test", "gpt-4o",
		WithBaseURL("http://localhost:8080/v1"),
		WithOrganization("org-test"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error from Close: %v", err)
	}
}
