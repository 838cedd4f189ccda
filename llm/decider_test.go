package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/becomeliminal/recall/memory"
)

func TestRecordAction_AddMemory(t *testing.T) {
	d := &Decider{}
	input := json.RawMessage(`{"memory_text":"User plays guitar","categories":["hobbies"]}`)

	action, result, isErr := d.recordAction("add_memory", input, 0)
	if isErr {
		t.Fatalf("Unexpected tool error: %s", result)
	}
	if action == nil || action.Kind != memory.ActionAdd {
		t.Fatalf("Expected add action, got %+v", action)
	}
	if action.Text != "User plays guitar" || len(action.Categories) != 1 {
		t.Errorf("Action fields wrong: %+v", action)
	}

	// Empty text is rejected and fed back to the model as a tool error.
	action, result, isErr = d.recordAction("add_memory", json.RawMessage(`{"memory_text":"  ","categories":[]}`), 0)
	if !isErr || action != nil {
		t.Errorf("Expected rejection of empty text, got %+v / %s", action, result)
	}
}

func TestRecordAction_UpdateMemoryRangeCheck(t *testing.T) {
	d := &Decider{}
	valid := json.RawMessage(`{"memory_id":1,"memory_text":"User lives in Berlin","categories":["location"]}`)

	action, _, isErr := d.recordAction("update_memory", valid, 3)
	if isErr || action == nil || action.Kind != memory.ActionUpdate || action.LocalIndex != 1 {
		t.Fatalf("Expected update action for index 1, got %+v", action)
	}

	// Ids outside the snapshot are tool errors, never actions.
	action, result, isErr := d.recordAction("update_memory", valid, 1)
	if !isErr || action != nil {
		t.Errorf("Expected out-of-range rejection, got %+v / %s", action, result)
	}
	if !strings.Contains(result, "unknown memory_id") {
		t.Errorf("Unexpected error text: %s", result)
	}
}

func TestRecordAction_MarkObsolete(t *testing.T) {
	d := &Decider{}
	action, _, isErr := d.recordAction("mark_memory_obsolete", json.RawMessage(`{"memory_id":0}`), 1)
	if isErr || action == nil || action.Kind != memory.ActionSupersede || action.LocalIndex != 0 {
		t.Fatalf("Expected supersede action, got %+v", action)
	}

	action, _, isErr = d.recordAction("mark_memory_obsolete", json.RawMessage(`{"memory_id":2}`), 1)
	if !isErr || action != nil {
		t.Errorf("Expected out-of-range rejection, got %+v", action)
	}
}

func TestRecordAction_NoopAndUnknown(t *testing.T) {
	d := &Decider{}

	action, _, isErr := d.recordAction("noop", json.RawMessage(`{}`), 0)
	if isErr || action == nil || action.Kind != memory.ActionNoop {
		t.Fatalf("Expected noop action, got %+v", action)
	}

	action, result, isErr := d.recordAction("launch_missiles", json.RawMessage(`{}`), 0)
	if !isErr || action != nil {
		t.Errorf("Expected unknown-tool rejection, got %+v / %s", action, result)
	}
}
