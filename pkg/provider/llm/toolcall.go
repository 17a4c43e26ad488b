package llm

import (
	"encoding/json"

	"github.com/auricle-ai/auricle/pkg/types"
)

// DecodeToolCall fills tc.Parsed from the wire Arguments JSON. Malformed
// arguments leave Parsed nil; downstream callers report such calls back to
// the model as invalid rather than executing them.
func DecodeToolCall(tc types.ToolCall) types.ToolCall {
	if tc.Arguments == "" {
		tc.Parsed = map[string]any{}
		return tc
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &parsed); err != nil {
		tc.Parsed = nil
		return tc
	}
	tc.Parsed = parsed
	return tc
}
