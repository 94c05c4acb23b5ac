package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tmuxorc/tmuxorc/internal/target"
)

// Assignment is the §6 "assignments/<task_id>.json — task-to-agent
// routing" record.
type Assignment struct {
	AssignmentID       string   `json:"assignment_id"`
	TaskID             string   `json:"task_id"`
	AgentID            string   `json:"agent_id"`
	TaskTitle          *string  `json:"task_title"`
	TaskDescription    *string  `json:"task_description"`
	Priority           string   `json:"priority"`
	EstimatedHours     *int     `json:"estimated_hours"`
	DueDate            *string  `json:"due_date"`
	Dependencies       []string `json:"dependencies"`
	CompletionCriteria []string `json:"completion_criteria"`
	Status             string   `json:"status"`
	AssignedAt         string   `json:"assigned_at"`
	AssignedBy         string   `json:"assigned_by"`
}

var validPriorities = map[string]bool{"low": true, "medium": true, "high": true, "critical": true}

// AssignRequest describes an assignment to create or update.
type AssignRequest struct {
	TaskID             string
	Agent              target.Target
	TaskTitle          string
	TaskDescription    string
	Priority           string
	EstimatedHours     *int
	DueDate            string
	Dependencies       []string
	CompletionCriteria []string
}

func (r AssignRequest) validate() error {
	if strings.TrimSpace(r.TaskID) == "" {
		return fmt.Errorf("assignment: task id cannot be empty")
	}
	if r.Priority == "" {
		r.Priority = "medium"
	}
	if !validPriorities[r.Priority] {
		return fmt.Errorf("assignment: invalid priority %q", r.Priority)
	}
	if r.EstimatedHours != nil && *r.EstimatedHours < 0 {
		return fmt.Errorf("assignment: estimated hours must be non-negative")
	}
	return nil
}

// AssignmentStore persists Assignments as one JSON file per task under
// dir/assignments, using the same lock-and-atomic-write discipline as
// Store.
type AssignmentStore struct {
	lockedDir
}

// NewAssignmentStore returns an AssignmentStore rooted at stateDir.
func NewAssignmentStore(stateDir string) *AssignmentStore {
	return &AssignmentStore{lockedDir{dir: filepath.Join(stateDir, "assignments")}}
}

// Assign records a new (or replacing) assignment of a task to an agent and
// returns it. now is injected so callers control the assigned_at timestamp
// deterministically in tests; newID lets tests substitute a fixed UUID.
func Assign(s *AssignmentStore, req AssignRequest, now time.Time, newID func() string) (Assignment, error) {
	if req.Priority == "" {
		req.Priority = "medium"
	}
	if err := req.validate(); err != nil {
		return Assignment{}, err
	}
	if newID == nil {
		newID = func() string { return uuid.NewString() }
	}

	a := Assignment{
		AssignmentID:       newID(),
		TaskID:             req.TaskID,
		AgentID:            req.Agent.String(),
		Priority:           req.Priority,
		EstimatedHours:     req.EstimatedHours,
		Dependencies:       req.Dependencies,
		CompletionCriteria: req.CompletionCriteria,
		Status:             "assigned",
		AssignedAt:         now.UTC().Format(time.RFC3339),
		AssignedBy:         "orchestrator",
	}
	if req.TaskTitle != "" {
		a.TaskTitle = &req.TaskTitle
	}
	if req.TaskDescription != "" {
		a.TaskDescription = &req.TaskDescription
	}
	if req.DueDate != "" {
		a.DueDate = &req.DueDate
	}

	if err := s.save(a); err != nil {
		return Assignment{}, err
	}
	return a, nil
}

func (s *AssignmentStore) save(a Assignment) error {
	return s.withLock(a.TaskID, func() error {
		data, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return err
		}
		return atomicWrite(s.path(a.TaskID), data)
	})
}

// Load reads a single assignment by task id.
func (s *AssignmentStore) Load(taskID string) (Assignment, error) {
	path := s.path(taskID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Assignment{}, &NotFoundError{TaskID: taskID}
		}
		return Assignment{}, fmt.Errorf("store: reading %s: %w", path, err)
	}
	var a Assignment
	if err := json.Unmarshal(data, &a); err != nil {
		return Assignment{}, &CorruptError{Path: path, Err: err}
	}
	return a, nil
}

// ForAgent returns every assignment currently routed to agentID
// ("session:window"). Corrupt files are skipped, matching Store.List.
func (s *AssignmentStore) ForAgent(agentID string) ([]Assignment, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: listing %s: %w", s.dir, err)
	}
	var out []Assignment
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var a Assignment
		if err := json.Unmarshal(data, &a); err != nil {
			continue
		}
		if a.AgentID == agentID {
			out = append(out, a)
		}
	}
	return out, nil
}

// Workload summarizes an agent's current assignment load.
type Workload struct {
	AgentID              string
	TotalTasks           int
	ActiveTasks          int
	PendingTasks         int
	CompletedTasks       int
	TotalEstimatedHours  int
}

// WorkloadFor computes a Workload summary for agentID from its current
// assignments.
func (s *AssignmentStore) WorkloadFor(agentID string) (Workload, error) {
	assignments, err := s.ForAgent(agentID)
	if err != nil {
		return Workload{}, err
	}
	w := Workload{AgentID: agentID, TotalTasks: len(assignments)}
	for _, a := range assignments {
		switch a.Status {
		case "assigned", "in_progress":
			w.ActiveTasks++
		case "pending":
			w.PendingTasks++
		case "completed":
			w.CompletedTasks++
		}
		if a.EstimatedHours != nil {
			w.TotalEstimatedHours += *a.EstimatedHours
		}
	}
	return w, nil
}

// LoadScore normalizes an agent's active-task count and estimated hours to
// a 0.0 (idle) .. 1.0 (saturated) score, for load-balanced assignment.
// 10 tasks and 80 hours are each treated as the saturation point.
func LoadScore(activeTasks, totalHours int) float64 {
	taskScore := min(float64(activeTasks)/10.0, 1.0)
	hoursScore := min(float64(totalHours)/80.0, 1.0)
	return (taskScore + hoursScore) / 2.0
}

// Reassign loads the existing assignment for taskID and re-assigns it to a
// new agent, preserving title/description/priority/etc.
func Reassign(s *AssignmentStore, taskID string, agent target.Target, now time.Time, newID func() string) (Assignment, error) {
	existing, err := s.Load(taskID)
	if err != nil {
		return Assignment{}, err
	}
	req := AssignRequest{
		TaskID:             taskID,
		Agent:              agent,
		Priority:           existing.Priority,
		EstimatedHours:     existing.EstimatedHours,
		Dependencies:       existing.Dependencies,
		CompletionCriteria: existing.CompletionCriteria,
	}
	if existing.TaskTitle != nil {
		req.TaskTitle = *existing.TaskTitle
	}
	if existing.TaskDescription != nil {
		req.TaskDescription = *existing.TaskDescription
	}
	if existing.DueDate != nil {
		req.DueDate = *existing.DueDate
	}
	return Assign(s, req, now, newID)
}

// AssignmentMessage renders the pane text sent to the assigned agent.
func AssignmentMessage(req AssignRequest) string {
	var b strings.Builder
	b.WriteString("===== TASK ASSIGNMENT =====\n")
	fmt.Fprintf(&b, "Task ID: %s\n", req.TaskID)

	if req.TaskTitle != "" {
		fmt.Fprintf(&b, "Title: %s\n", req.TaskTitle)
	}
	if req.TaskDescription != "" {
		b.WriteString("\nDESCRIPTION:\n")
		b.WriteString(req.TaskDescription)
		b.WriteString("\n")
	}

	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}
	fmt.Fprintf(&b, "\nPriority: %s\n", priority)

	if req.EstimatedHours != nil && *req.EstimatedHours > 0 {
		fmt.Fprintf(&b, "Estimated Hours: %d\n", *req.EstimatedHours)
	}
	if req.DueDate != "" {
		fmt.Fprintf(&b, "Due Date: %s\n", req.DueDate)
	}
	if len(req.Dependencies) > 0 {
		b.WriteString("\nDEPENDENCIES:\n")
		b.WriteString(strings.Join(req.Dependencies, ", "))
		b.WriteString("\n")
	}
	if len(req.CompletionCriteria) > 0 {
		b.WriteString("\nCOMPLETION CRITERIA:\n")
		for _, c := range req.CompletionCriteria {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	b.WriteString("\nPlease acknowledge this assignment and update task status as you progress.\n")
	b.WriteString("===== END ASSIGNMENT =====")
	return b.String()
}
