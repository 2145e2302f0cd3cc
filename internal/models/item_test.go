package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, p, "empty priority defaults to medium")

	p, err = ParsePriority("  HIGH ")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, p)

	_, err = ParsePriority("critical")
	assert.Error(t, err)

	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"queue", "work", "review", "blocked", "terminal"} {
		role, err := ParseRole(s)
		require.NoError(t, err)
		assert.True(t, role.IsValid())
	}
	_, err := ParseRole("done")
	assert.Error(t, err)
	assert.False(t, Role("done").IsValid())
}

func TestTagSetNormalization(t *testing.T) {
	item := &WorkItem{Tags: " Backend, feature ,backend,,API "}
	assert.Equal(t, []string{"api", "backend", "feature"}, item.TagSet())
	assert.True(t, item.HasTag("BACKEND"))
	assert.False(t, item.HasTag("frontend"))

	assert.Equal(t, "api,backend,feature", NormalizeTags(" Backend, feature ,backend,,API "))
	assert.Equal(t, "", NormalizeTags(""))
	assert.Nil(t, (&WorkItem{}).TagSet())
}

func TestWorkItemValidate(t *testing.T) {
	valid := &WorkItem{
		ID: "item_1", Title: "Task", Priority: PriorityMedium,
		Status: "pending", Role: RoleQueue,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*WorkItem)
	}{
		{"missing id", func(i *WorkItem) { i.ID = "" }},
		{"blank title", func(i *WorkItem) { i.Title = "  " }},
		{"depth past cap", func(i *WorkItem) { i.ParentID = "item_p"; i.Depth = MaxItemDepth + 1 }},
		{"root with nonzero depth", func(i *WorkItem) { i.Depth = 1 }},
		{"child with zero depth", func(i *WorkItem) { i.ParentID = "item_p" }},
		{"unknown priority", func(i *WorkItem) { i.Priority = "urgent" }},
		{"unknown role", func(i *WorkItem) { i.Role = "done" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := *valid
			tt.mutate(&item)
			assert.Error(t, item.Validate())
		})
	}
}

func TestParseTrigger(t *testing.T) {
	for _, s := range []string{"start", "complete", "cancel", "block", "hold", "resume", "back"} {
		trigger, err := ParseTrigger(s)
		require.NoError(t, err)
		assert.Equal(t, Trigger(s), trigger)
	}
	_, err := ParseTrigger("finish")
	assert.Error(t, err)
}
