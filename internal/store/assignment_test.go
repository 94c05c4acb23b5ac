package store

import (
	"strings"
	"testing"
	"time"

	"github.com/tmuxorc/tmuxorc/internal/target"
)

func fixedID(id string) func() string { return func() string { return id } }

func testAgent() target.Target {
	return target.Target{Session: "proj", Window: 1, HasWindow: true}
}

func TestAssignAndLoad(t *testing.T) {
	s := NewAssignmentStore(t.TempDir())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	req := AssignRequest{TaskID: "task-1", Agent: testAgent(), Priority: "high"}

	got, err := Assign(s, req, now, fixedID("assign-1"))
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if got.AssignmentID != "assign-1" || got.AgentID != "proj:1" || got.Status != "assigned" {
		t.Errorf("unexpected assignment: %+v", got)
	}

	loaded, err := s.Load("task-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.TaskID != "task-1" || loaded.Priority != "high" {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestAssign_RejectsInvalidPriority(t *testing.T) {
	s := NewAssignmentStore(t.TempDir())
	req := AssignRequest{TaskID: "task-1", Agent: testAgent(), Priority: "urgent"}
	if _, err := Assign(s, req, time.Now(), fixedID("x")); err == nil {
		t.Error("expected error for invalid priority")
	}
}

func TestAssign_RejectsEmptyTaskID(t *testing.T) {
	s := NewAssignmentStore(t.TempDir())
	req := AssignRequest{Agent: testAgent()}
	if _, err := Assign(s, req, time.Now(), fixedID("x")); err == nil {
		t.Error("expected error for empty task id")
	}
}

func TestLoad_MissingReturnsNotFound(t *testing.T) {
	s := NewAssignmentStore(t.TempDir())
	_, err := s.Load("nope")
	if _, ok := err.(*NotFoundError); !ok {
		t.Errorf("expected *NotFoundError, got %T: %v", err, err)
	}
}

func TestForAgentAndWorkload(t *testing.T) {
	s := NewAssignmentStore(t.TempDir())
	now := time.Now()
	hours := 4
	if _, err := Assign(s, AssignRequest{TaskID: "task-1", Agent: testAgent(), EstimatedHours: &hours}, now, fixedID("a1")); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := Assign(s, AssignRequest{TaskID: "task-2", Agent: testAgent(), EstimatedHours: &hours}, now, fixedID("a2")); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	assignments, err := s.ForAgent("proj:1")
	if err != nil {
		t.Fatalf("ForAgent: %v", err)
	}
	if len(assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(assignments))
	}

	wl, err := s.WorkloadFor("proj:1")
	if err != nil {
		t.Fatalf("WorkloadFor: %v", err)
	}
	if wl.TotalTasks != 2 || wl.ActiveTasks != 2 || wl.TotalEstimatedHours != 8 {
		t.Errorf("unexpected workload: %+v", wl)
	}
}

func TestReassignPreservesFields(t *testing.T) {
	s := NewAssignmentStore(t.TempDir())
	now := time.Now()
	hours := 6
	title := "Fix the bug"
	if _, err := Assign(s, AssignRequest{TaskID: "task-1", Agent: testAgent(), Priority: "critical", EstimatedHours: &hours, TaskTitle: title}, now, fixedID("a1")); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	newAgent := target.Target{Session: "proj", Window: 2, HasWindow: true}
	reassigned, err := Reassign(s, "task-1", newAgent, now, fixedID("a2"))
	if err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	if reassigned.AgentID != "proj:2" || reassigned.Priority != "critical" {
		t.Errorf("unexpected reassignment: %+v", reassigned)
	}
	if reassigned.TaskTitle == nil || *reassigned.TaskTitle != title {
		t.Errorf("title not preserved: %+v", reassigned.TaskTitle)
	}
}

func TestLoadScore(t *testing.T) {
	if got := LoadScore(0, 0); got != 0 {
		t.Errorf("idle score = %v, want 0", got)
	}
	if got := LoadScore(10, 80); got != 1 {
		t.Errorf("saturated score = %v, want 1", got)
	}
	if got := LoadScore(20, 160); got != 1 {
		t.Errorf("over-saturated score = %v, want clamped to 1", got)
	}
}

func TestAssignmentMessageTemplate(t *testing.T) {
	hours := 3
	msg := AssignmentMessage(AssignRequest{
		TaskID:             "task-1",
		TaskTitle:          "Ship the feature",
		TaskDescription:    "Implement and test it",
		Priority:           "high",
		EstimatedHours:     &hours,
		Dependencies:       []string{"task-0"},
		CompletionCriteria: []string{"tests pass", "reviewed"},
	})
	for _, want := range []string{
		"===== TASK ASSIGNMENT =====",
		"Task ID: task-1",
		"Title: Ship the feature",
		"DESCRIPTION:",
		"Priority: high",
		"Estimated Hours: 3",
		"DEPENDENCIES:",
		"task-0",
		"COMPLETION CRITERIA:",
		"- tests pass",
		"- reviewed",
		"===== END ASSIGNMENT =====",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}
