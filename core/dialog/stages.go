package dialog

import "github.com/m3rciful/propbot/core/state"

// Conversation stages.
const (
	Start            state.Stage = "START"
	AwaitingBudget   state.Stage = "AWAITING_BUDGET"
	AwaitingCity     state.Stage = "AWAITING_CITY"
	MainMenu         state.Stage = "MAIN_MENU"
	Searching        state.Stage = "SEARCHING"
	Scheduling       state.Stage = "SCHEDULING"
	ViewingConfirmed state.Stage = "VIEWING_CONFIRMED"
	PropertyInfo     state.Stage = "PROPERTY_INFO"
	ContactAgent     state.Stage = "CONTACT_AGENT"
	Help             state.Stage = "HELP"
	MoreOptions      state.Stage = "MORE_OPTIONS"
	PropertyDetails  state.Stage = "PROPERTY_DETAILS"
)

// Initial is the stage assigned to a freshly created session.
const Initial = Start

// Context keys written by the flows.
const (
	KeyType           = "type"
	KeyBudget         = "budget"
	KeyCity           = "city"
	KeySearchLocation = "search_location"
	KeyViewingSlot    = "viewing_slot"
	KeyPropertyID     = "property_id"
	KeyAgentQuery     = "agent_query"
)

var stages = []state.Stage{
	Start, AwaitingBudget, AwaitingCity, MainMenu, Searching, Scheduling,
	ViewingConfirmed, PropertyInfo, ContactAgent, Help, MoreOptions, PropertyDetails,
}

// owned lists the context keys a stage's sub-flow is responsible for.
// Leaving the stage through the menu override unsets them.
var owned = map[state.Stage][]string{
	AwaitingBudget:   {KeyType, KeyBudget, KeyCity},
	AwaitingCity:     {KeyType, KeyBudget, KeyCity},
	Searching:        {KeySearchLocation},
	Scheduling:       {KeyViewingSlot},
	ViewingConfirmed: {KeyViewingSlot},
	PropertyInfo:     {KeyPropertyID},
	PropertyDetails:  {KeyPropertyID},
	ContactAgent:     {KeyAgentQuery},
}

// Stages returns every known stage in declaration order.
func Stages() []state.Stage {
	out := make([]state.Stage, len(stages))
	copy(out, stages)
	return out
}

// Known reports whether s is a member of the stage enumeration.
func Known(s state.Stage) bool {
	for _, k := range stages {
		if k == s {
			return true
		}
	}
	return false
}

// OwnedKeys returns the context keys reset when the menu override leaves s.
func OwnedKeys(s state.Stage) []string {
	keys := owned[s]
	if len(keys) == 0 {
		return nil
	}
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}
