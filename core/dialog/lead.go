package dialog

import "maps"

// LeadKind names the completion action that produced a lead.
type LeadKind string

const (
	LeadEnquiry       LeadKind = "enquiry"
	LeadViewing       LeadKind = "viewing"
	LeadAgentCallback LeadKind = "agent_callback"
)

// Lead captures what a user asked for when a flow completes.
type Lead struct {
	UserID string
	Kind   LeadKind
	Fields map[string]string
}

func newLead(userID string, kind LeadKind, fields map[string]string) *Lead {
	return &Lead{UserID: userID, Kind: kind, Fields: maps.Clone(fields)}
}
