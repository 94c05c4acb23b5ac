package role

import "testing"

func TestFromWindowName(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Claude-pm", PM},
		{"Claude-project-manager", PM},
		{"Claude-manager-1", PM},
		{"Claude-orchestrator", Orchestrator},
		{"Claude-orc", Orchestrator},
		{"Claude-frontend-dev-1", Frontend},
		{"Claude-backend-dev-2", Backend},
		{"Claude-qa", QA},
		{"Claude-test-runner", QA},
		{"Claude-devops", DevOps},
		{"Claude-ops", DevOps},
		{"Claude-reviewer", Reviewer},
		{"Claude-review", Reviewer},
		{"Claude-docs", Writer},
		{"Claude-writer", Writer},
		{"Claude-documentation", Writer},
		{"Claude-db", Database},
		{"Claude-database", Database},
		{"Claude-data-eng", Database},
		{"Claude-random-widget", Developer},
		{"bash", Developer},
	}
	for _, c := range cases {
		if got := FromWindowName(c.name); got != c.want {
			t.Errorf("FromWindowName(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestFromWindowName_FirstMatchWins(t *testing.T) {
	// "pm" appears before "orchestrator" in the table, and "Claude-pm-orchestrator"
	// contains both substrings — PM must win per the ordering in §4.3.
	if got := FromWindowName("Claude-pm-orchestrator"); got != PM {
		t.Errorf("expected PM to win first match, got %q", got)
	}
}

func TestUnique(t *testing.T) {
	if !Unique(PM) || !Unique(Orchestrator) {
		t.Error("PM and Orchestrator must be unique roles")
	}
	if Unique(Developer) || Unique(QA) {
		t.Error("Developer and QA must not be unique roles")
	}
}
