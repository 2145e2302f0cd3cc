package workflow

import (
	"testing"

	"github.com/ternarybob/trellis/internal/models"
)

// reviewConfig adds a tag-selected flow that passes through a review status.
func reviewConfig() *models.WorkflowConfig {
	cfg := DefaultWorkflowConfig()
	cfg.Flows = append(cfg.Flows,
		models.Flow{
			Name:      "feature",
			MatchTags: []string{"feature"},
			Sequence:  []string{"pending", "in-progress", "review", "completed"},
			Terminal:  []string{"completed", models.StatusCancelled},
			Emergency: []string{"blocked", models.StatusOnHold},
		},
		models.Flow{
			Name:      "backend-feature",
			MatchTags: []string{"feature", "backend"},
			Sequence:  []string{"pending", "in-progress", "review", "completed"},
			Terminal:  []string{"completed", models.StatusCancelled},
			Emergency: []string{"blocked", models.StatusOnHold},
		},
	)
	cfg.StatusRoles["review"] = models.RoleReview
	return cfg
}

func itemAt(status string, tags string) *models.WorkItem {
	return &models.WorkItem{ID: "item_test", Status: status, Tags: tags}
}

func TestSelectFlow(t *testing.T) {
	cfg := reviewConfig()

	if flow := SelectFlow(cfg, nil); flow.Name != "default" {
		t.Errorf("Expected default flow for no tags, got %q", flow.Name)
	}
	if flow := SelectFlow(cfg, []string{"bug"}); flow.Name != "default" {
		t.Errorf("Expected default flow for unmatched tags, got %q", flow.Name)
	}
	if flow := SelectFlow(cfg, []string{"feature"}); flow.Name != "feature" {
		t.Errorf("Expected feature flow, got %q", flow.Name)
	}
	// Most specific match wins.
	if flow := SelectFlow(cfg, []string{"feature", "backend"}); flow.Name != "backend-feature" {
		t.Errorf("Expected backend-feature flow, got %q", flow.Name)
	}

	// Equal specificity resolves in configuration order.
	cfg.Flows = append(cfg.Flows, models.Flow{
		Name:      "feature-alt",
		MatchTags: []string{"feature"},
		Sequence:  []string{"pending", "completed"},
		Terminal:  []string{"completed"},
	})
	if flow := SelectFlow(cfg, []string{"feature"}); flow.Name != "feature" {
		t.Errorf("Expected configuration-order tie break, got %q", flow.Name)
	}
}

func TestInitialStatus(t *testing.T) {
	cfg := reviewConfig()

	status, role, err := InitialStatus(cfg, nil)
	if err != nil {
		t.Fatalf("InitialStatus failed: %v", err)
	}
	if status != "pending" || role != models.RoleQueue {
		t.Errorf("Expected pending/queue, got %s/%s", status, role)
	}
}

func TestResolveTriggerTable(t *testing.T) {
	cfg := reviewConfig()
	defaultFlow := SelectFlow(cfg, nil)
	featureFlow := SelectFlow(cfg, []string{"feature"})

	tests := []struct {
		name     string
		flow     *models.Flow
		status   string
		trigger  models.Trigger
		want     string
		wantCode models.ErrorCode
	}{
		{"start from queue", defaultFlow, "pending", models.TriggerStart, "in-progress", ""},
		{"start from work", defaultFlow, "in-progress", models.TriggerStart, "", models.CodeNoTransitionAvailable},
		{"complete skips to terminal without review", defaultFlow, "in-progress", models.TriggerComplete, "completed", ""},
		{"complete from queue", defaultFlow, "pending", models.TriggerComplete, "completed", ""},
		{"complete stops at review", featureFlow, "in-progress", models.TriggerComplete, "review", ""},
		{"complete from review reaches terminal", featureFlow, "review", models.TriggerComplete, "completed", ""},
		{"complete from terminal", defaultFlow, "completed", models.TriggerComplete, "", models.CodeNoTransitionAvailable},
		{"cancel from work", defaultFlow, "in-progress", models.TriggerCancel, models.StatusCancelled, ""},
		{"cancel from blocked", defaultFlow, "blocked", models.TriggerCancel, models.StatusCancelled, ""},
		{"cancel when terminal", defaultFlow, models.StatusCancelled, models.TriggerCancel, "", models.CodeNoTransitionAvailable},
		{"block from work", defaultFlow, "in-progress", models.TriggerBlock, "blocked", ""},
		{"block when blocked", defaultFlow, "blocked", models.TriggerBlock, "", models.CodeNoTransitionAvailable},
		{"block when terminal", defaultFlow, "completed", models.TriggerBlock, "", models.CodeNoTransitionAvailable},
		{"hold from queue", defaultFlow, "pending", models.TriggerHold, models.StatusOnHold, ""},
		{"resume from work role", defaultFlow, "in-progress", models.TriggerResume, "", models.CodeNoTransitionAvailable},
		{"back from work", defaultFlow, "in-progress", models.TriggerBack, "pending", ""},
		{"back from first status", defaultFlow, "pending", models.TriggerBack, "", models.CodeNoTransitionAvailable},
		{"back from off-sequence status", defaultFlow, "blocked", models.TriggerBack, "", models.CodeNoTransitionAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags := ""
			if tt.flow.Name != "default" {
				tags = "feature"
			}
			got, err := ResolveTrigger(cfg, tt.flow, itemAt(tt.status, tags), tt.trigger, nil)
			if tt.wantCode != "" {
				if models.CodeOf(err) != tt.wantCode {
					t.Fatalf("Expected %s, got target=%q err=%v", tt.wantCode, got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected target %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolveTriggerResumeHistory(t *testing.T) {
	cfg := DefaultWorkflowConfig()
	flow := SelectFlow(cfg, nil)
	blocked := itemAt("blocked", "")

	// Blocked from work: the resume target is the status recorded before
	// the block.
	history := []*models.RoleTransition{
		{FromRole: models.RoleQueue, ToRole: models.RoleWork, FromStatus: "pending", ToStatus: "in-progress"},
		{FromRole: models.RoleWork, ToRole: models.RoleBlocked, FromStatus: "in-progress", ToStatus: "blocked"},
	}
	target, err := ResolveTrigger(cfg, flow, blocked, models.TriggerResume, history)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if target != "in-progress" {
		t.Errorf("Expected resume to in-progress, got %q", target)
	}

	// Blocked straight from the queue: only one entry, its from side is the
	// last non-blocked status.
	history = []*models.RoleTransition{
		{FromRole: models.RoleQueue, ToRole: models.RoleBlocked, FromStatus: "pending", ToStatus: models.StatusOnHold},
	}
	target, err = ResolveTrigger(cfg, flow, itemAt(models.StatusOnHold, ""), models.TriggerResume, history)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if target != "pending" {
		t.Errorf("Expected resume to pending, got %q", target)
	}

	// No history at all.
	_, err = ResolveTrigger(cfg, flow, blocked, models.TriggerResume, nil)
	if models.CodeOf(err) != models.CodeNoTransitionAvailable {
		t.Errorf("Expected NoTransitionAvailable without history, got %v", err)
	}
}
