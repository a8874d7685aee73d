package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Tool is the slice of the tool catalog the collection pipeline needs.
type Tool struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
	Name string    `json:"name"`
}

// ToolMapping resolves tool names and slugs to catalog ids. It is rebuilt
// from the tools table at the start of every collection cycle and thrown
// away at cycle end.
type ToolMapping struct {
	byKey map[string]uuid.UUID
}

func NewToolMapping(tools []Tool) *ToolMapping {
	m := &ToolMapping{byKey: make(map[string]uuid.UUID, len(tools)*2)}
	for _, t := range tools {
		if t.Name != "" {
			m.byKey[strings.ToLower(t.Name)] = t.ID
		}
		if t.Slug != "" {
			m.byKey[strings.ToLower(t.Slug)] = t.ID
		}
	}
	return m
}

// Lookup returns the tool id for a name or slug, case-insensitive.
func (m *ToolMapping) Lookup(nameOrSlug string) (uuid.UUID, bool) {
	if m == nil || nameOrSlug == "" {
		return uuid.Nil, false
	}
	id, ok := m.byKey[strings.ToLower(strings.TrimSpace(nameOrSlug))]
	return id, ok
}

func (m *ToolMapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.byKey)
}
