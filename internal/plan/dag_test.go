package plan

import (
	"errors"
	"strings"
	"testing"

	"github.com/Wbcubazo/Multiday-mini/internal/model"
)

func TestValidateDAG_LinearChain(t *testing.T) {
	names := []string{"A", "B", "C"}
	blockedBy := map[string][]string{
		"B": {"A"},
		"C": {"B"},
	}

	sorted, err := validateDAG(names, blockedBy)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	idxA, idxB, idxC := indexOf(sorted, "A"), indexOf(sorted, "B"), indexOf(sorted, "C")
	if idxA < 0 || idxB < 0 || idxC < 0 {
		t.Fatalf("expected all nodes in sorted result, got %v", sorted)
	}
	if idxA >= idxB {
		t.Errorf("expected A before B, got A at %d, B at %d", idxA, idxB)
	}
	if idxB >= idxC {
		t.Errorf("expected B before C, got B at %d, C at %d", idxB, idxC)
	}
}

func TestValidateDAG_Diamond(t *testing.T) {
	names := []string{"A", "B", "C", "D"}
	blockedBy := map[string][]string{
		"B": {"A"},
		"C": {"A"},
		"D": {"B", "C"},
	}

	sorted, err := validateDAG(names, blockedBy)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(sorted) != 4 {
		t.Fatalf("expected 4 nodes, got %d: %v", len(sorted), sorted)
	}

	idxA := indexOf(sorted, "A")
	idxB := indexOf(sorted, "B")
	idxC := indexOf(sorted, "C")
	idxD := indexOf(sorted, "D")

	if idxA >= idxB {
		t.Errorf("expected A before B")
	}
	if idxA >= idxC {
		t.Errorf("expected A before C")
	}
	if idxB >= idxD {
		t.Errorf("expected B before D")
	}
	if idxC >= idxD {
		t.Errorf("expected C before D")
	}
}

func TestValidateDAG_NoDependencies(t *testing.T) {
	names := []string{"X", "Y", "Z"}
	blockedBy := map[string][]string{}

	sorted, err := validateDAG(names, blockedBy)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(sorted) != 3 {
		t.Fatalf("expected 3 nodes, got %d: %v", len(sorted), sorted)
	}

	seen := make(map[string]bool)
	for _, n := range sorted {
		seen[n] = true
	}
	for _, n := range names {
		if !seen[n] {
			t.Errorf("expected %q in sorted result", n)
		}
	}
}

func TestValidateDAG_CycleDetection(t *testing.T) {
	names := []string{"A", "B"}
	blockedBy := map[string][]string{
		"A": {"B"},
		"B": {"A"},
	}

	_, err := validateDAG(names, blockedBy)
	if err == nil {
		t.Fatal("expected error for cycle, got nil")
	}
	if !strings.Contains(err.Error(), "circular dependency") {
		t.Errorf("expected error containing 'circular dependency', got %q", err.Error())
	}
}

func TestValidateDAG_ThreeNodeCycle(t *testing.T) {
	names := []string{"A", "B", "C"}
	blockedBy := map[string][]string{
		"A": {"C"},
		"B": {"A"},
		"C": {"B"},
	}

	_, err := validateDAG(names, blockedBy)
	if err == nil {
		t.Fatal("expected error for three-node cycle, got nil")
	}
	if !strings.Contains(err.Error(), "circular dependency") {
		t.Errorf("expected error containing 'circular dependency', got %q", err.Error())
	}
}

func TestValidateDAG_SelfReference(t *testing.T) {
	names := []string{"A"}
	blockedBy := map[string][]string{
		"A": {"A"},
	}

	_, err := validateDAG(names, blockedBy)
	if err == nil {
		t.Fatal("expected error for self-reference cycle, got nil")
	}
	if !strings.Contains(err.Error(), "circular dependency") {
		t.Errorf("expected error containing 'circular dependency', got %q", err.Error())
	}
}
func TestValidateDAG_EmptyInput(t *testing.T) {
	sorted, err := validateDAG(nil, nil)
	if err != nil {
		t.Fatalf("expected no error for empty input, got %v", err)
	}
	if sorted != nil {
		t.Errorf("expected nil result for empty input, got %v", sorted)
	}

	if err := ValidateBatchOrder(nil); err != nil {
		t.Fatalf("expected no error for empty batch, got %v", err)
	}
}

func batchTask(id string, deps ...string) model.Task {
	return model.Task{ID: id, To: "Worker", Dependencies: deps}
}

func TestValidateBatchOrder_Valid(t *testing.T) {
	tasks := []model.Task{
		batchTask("a"),
		batchTask("b", "a"),
		batchTask("c", "a", "b", "outside_batch"),
	}
	if err := ValidateBatchOrder(tasks); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateBatchOrder_ForwardReference(t *testing.T) {
	tasks := []model.Task{
		batchTask("a", "b"),
		batchTask("b"),
	}
	err := ValidateBatchOrder(tasks)
	if err == nil {
		t.Fatal("expected error for forward reference, got nil")
	}
	if !strings.Contains(err.Error(), "queued after it") {
		t.Errorf("expected ordering error, got %q", err.Error())
	}
}

func TestValidateBatchOrder_PayloadReferences(t *testing.T) {
	publish := model.Task{ID: "p", To: "Publisher", Payload: map[string]any{
		"references": []any{"later"},
	}}
	tasks := []model.Task{publish, batchTask("later")}

	err := ValidateBatchOrder(tasks)
	if err == nil {
		t.Fatal("expected error for reference to later task, got nil")
	}

	var verrs *ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected *ValidationErrors, got %T", err)
	}
	if len(verrs.Errors) == 0 {
		t.Error("expected at least one validation error")
	}
}

func TestValidateBatchOrder_DuplicateAndSelf(t *testing.T) {
	tasks := []model.Task{
		batchTask("a"),
		batchTask("a"),
		batchTask("s", "s"),
	}
	err := ValidateBatchOrder(tasks)
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "duplicate id") {
		t.Errorf("expected duplicate id error, got %q", msg)
	}
	if !strings.Contains(msg, "self-reference") {
		t.Errorf("expected self-reference error, got %q", msg)
	}
}

func TestValidateBatchOrder_Cycle(t *testing.T) {
	tasks := []model.Task{
		batchTask("a", "b"),
		batchTask("b", "a"),
	}
	err := ValidateBatchOrder(tasks)
	if err == nil {
		t.Fatal("expected error for cycle, got nil")
	}
	if !strings.Contains(err.Error(), "circular dependency") {
		t.Errorf("expected circular dependency error, got %q", err.Error())
	}
}

func indexOf(slice []string, val string) int {
	for i, s := range slice {
		if s == val {
			return i
		}
	}
	return -1
}
