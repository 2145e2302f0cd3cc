package models

// RecommendationKind discriminates the three recommendation variants.
type RecommendationKind string

const (
	RecommendationReady    RecommendationKind = "ready"
	RecommendationBlocked  RecommendationKind = "blocked"
	RecommendationTerminal RecommendationKind = "terminal"
)

// NextStatusRecommendation is a three-variant tagged union. Clients match
// on Kind; there is no sentinel status string form.
//
//   - ready:    TargetStatus is set
//   - blocked:  MissingNotes and/or UnresolvedBlockers explain the block
//   - terminal: TerminalStatus is the item's final status
type NextStatusRecommendation struct {
	Kind               RecommendationKind `json:"kind"`
	TargetStatus       string             `json:"target_status,omitempty"`
	TerminalStatus     string             `json:"terminal_status,omitempty"`
	MissingNotes       []string           `json:"missing_notes,omitempty"`
	UnresolvedBlockers []string           `json:"unresolved_blockers,omitempty"`
	Reason             string             `json:"reason"`
	ActiveFlow         string             `json:"active_flow"`
	FlowSequence       []string           `json:"flow_sequence"`
	FlowPosition       int                `json:"flow_position"`
}
