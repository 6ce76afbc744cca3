package extract

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestBuildPrompt_ContainsChunkAndLimit(t *testing.T) {
	p := BuildPrompt("The mitochondria is the powerhouse of the cell.", 5)
	if p.System != SystemPrompt {
		t.Errorf("unexpected system prompt %q", p.System)
	}
	if !strings.Contains(p.User, "1-5 question-answer pairs") {
		t.Errorf("expected question limit in prompt, got %q", p.User)
	}
	if !strings.Contains(p.User, "The mitochondria is the powerhouse of the cell.") {
		t.Error("expected chunk text in prompt")
	}
	if !strings.Contains(p.User, `"supporting_quotes"`) {
		t.Error("expected response shape in prompt")
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	a := BuildPrompt("same text", 3)
	b := BuildPrompt("same text", 3)
	if a != b {
		t.Error("expected identical prompts for identical input")
	}
}

func TestBuildPrompt_ClampsMaxQuestions(t *testing.T) {
	p := BuildPrompt("text", 0)
	if !strings.Contains(p.User, "1-1 question-answer pairs") {
		t.Errorf("expected clamp to 1, got %q", p.User)
	}
}

func TestQASchema_IsValidJSON(t *testing.T) {
	var schema map[string]any
	if err := json.Unmarshal(QASchema, &schema); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if schema["type"] != "array" {
		t.Errorf("expected array schema, got %v", schema["type"])
	}
}
