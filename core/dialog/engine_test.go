package dialog

import (
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/m3rciful/propbot/core/catalog"
	"github.com/m3rciful/propbot/core/state"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	c, err := catalog.New([]catalog.Listing{
		{ID: "P101", Title: "2BHK Apartment", City: "Pune", Locality: "Baner", Price: "₹85L", Bedrooms: 2},
		{ID: "P102", Title: "1BHK Studio", City: "Pune", Locality: "Hinjewadi", Price: "₹18k/month"},
		{ID: "M201", Title: "2BHK Sea View", City: "Mumbai", Locality: "Bandra West", Price: "₹95k/month"},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return New(c)
}

// converse feeds inputs through the engine and commits each outcome the way
// the conversation service does.
func converse(e *Engine, store state.Store, user string, inputs ...string) []Outcome {
	outs := make([]Outcome, 0, len(inputs))
	for _, text := range inputs {
		s, created := store.GetOrCreate(user)
		var out Outcome
		if created {
			out = e.Welcome(user)
		} else {
			out = e.Decide(Turn{UserID: user, Stage: s.Stage, Context: s.Context, Text: text})
		}
		if out.End {
			store.Clear(user)
		} else {
			store.Update(user, out.Stage, out.Patch)
		}
		outs = append(outs, out)
	}
	return outs
}

func body(out Outcome) string {
	if len(out.Directives) == 0 {
		return ""
	}
	return out.Directives[0].Body
}

func TestChoiceTruncatesOptions(t *testing.T) {
	d := Choice("u1", "pick", "a", "b", "c", "d", "e")
	if d.Kind != KindChoice {
		t.Fatalf("kind = %q", d.Kind)
	}
	if !reflect.DeepEqual(d.Options, []string{"a", "b", "c"}) {
		t.Fatalf("options = %v", d.Options)
	}
}

func TestChoiceWithoutOptionsIsPlain(t *testing.T) {
	d := Choice("u1", "hello")
	if d.Kind != KindPlain || d.Options != nil || d.IsChoice() {
		t.Fatalf("unexpected directive %+v", d)
	}
}

func TestChoiceDoesNotAliasCallerSlice(t *testing.T) {
	opts := []string{"a", "b"}
	d := Choice("u1", "pick", opts...)
	opts[0] = "changed"
	if d.Options[0] != "a" {
		t.Fatalf("directive shares caller slice: %v", d.Options)
	}
}

func TestWelcomeGreetsAtStart(t *testing.T) {
	out := newTestEngine(t).Welcome("u1")
	if out.Stage != Start || out.Route != "welcome" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	d := out.Directives[0]
	if d.Recipient != "u1" || !d.IsChoice() || len(d.Options) != 3 {
		t.Fatalf("unexpected greeting %+v", d)
	}
}

func TestBuyRoundTripDestroysSession(t *testing.T) {
	e := newTestEngine(t)
	store := state.NewMemoryStore(Initial)

	outs := converse(e, store, "u1", "hi", "1", "50L", "Pune")
	if outs[1].Stage != AwaitingBudget || outs[2].Stage != AwaitingCity {
		t.Fatalf("unexpected stages %s, %s", outs[1].Stage, outs[2].Stage)
	}
	last := outs[3]
	if !last.End {
		t.Fatalf("summary must end the conversation")
	}
	for _, want := range []string{"Type: Buy", "Budget: 50L", "City: Pune"} {
		if !strings.Contains(body(last), want) {
			t.Fatalf("summary %q missing %q", body(last), want)
		}
	}
	if last.Lead == nil || last.Lead.Kind != LeadEnquiry || last.Lead.Fields[KeyCity] != "Pune" {
		t.Fatalf("unexpected lead %+v", last.Lead)
	}
	if _, ok := store.Get("u1"); ok {
		t.Fatalf("session should be destroyed after summary")
	}

	again := converse(e, store, "u1", "1")
	if again[0].Route != "welcome" || again[0].Stage != Start {
		t.Fatalf("next message should start fresh, got %+v", again[0])
	}
}

func TestRentSummaryDefaultsBudget(t *testing.T) {
	e := newTestEngine(t)
	store := state.NewMemoryStore(Initial)

	outs := converse(e, store, "u2", "hello", "2", "Mumbai")
	if outs[1].Stage != AwaitingCity {
		t.Fatalf("rent should ask for city, got %s", outs[1].Stage)
	}
	got := body(outs[2])
	if !strings.Contains(got, "Type: Rent") || !strings.Contains(got, "Budget: N/A") || !strings.Contains(got, "City: Mumbai") {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestBudgetIsStoredVerbatim(t *testing.T) {
	e := newTestEngine(t)
	out := e.Decide(Turn{UserID: "u1", Stage: AwaitingBudget, Context: map[string]string{KeyType: "Buy"}, Text: "  around 1.2 Cr?  "})
	if out.Patch.Set[KeyBudget] != "around 1.2 Cr?" {
		t.Fatalf("budget = %q", out.Patch.Set[KeyBudget])
	}
}

func TestUnrecognizedInputIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	for _, stage := range []state.Stage{Start, MainMenu, MoreOptions, Help} {
		turn := Turn{UserID: "u1", Stage: stage, Context: map[string]string{}, Text: "qwerty"}
		first := e.Decide(turn)
		second := e.Decide(turn)
		if first.Stage != stage || second.Stage != stage {
			t.Fatalf("%s: unrecognized input moved to %s/%s", stage, first.Stage, second.Stage)
		}
		if !reflect.DeepEqual(first.Directives, second.Directives) {
			t.Fatalf("%s: directives differ: %+v vs %+v", stage, first.Directives, second.Directives)
		}
		if !first.Patch.IsZero() {
			t.Fatalf("%s: unrecognized input patched context: %+v", stage, first.Patch)
		}
	}
}

func TestMenuOverrideFromEveryStage(t *testing.T) {
	e := newTestEngine(t)
	full := map[string]string{
		KeyType: "Buy", KeyBudget: "50L", KeyCity: "Pune", KeySearchLocation: "Pune",
		KeyViewingSlot: "Sat 11am", KeyPropertyID: "P101", KeyAgentQuery: "call me",
	}
	for _, stage := range Stages() {
		for _, text := range []string{"menu", "Back", "take me to the MENU please"} {
			out := e.Decide(Turn{UserID: "u1", Stage: stage, Context: full, Text: text})
			if out.Stage != Start || out.Route != "override.menu" {
				t.Fatalf("%s %q: got stage %s route %s", stage, text, out.Stage, out.Route)
			}
			if out.End || out.Patch.Reset {
				t.Fatalf("%s: override must not destroy or reset the session", stage)
			}
			if !reflect.DeepEqual(out.Patch.Unset, OwnedKeys(stage)) {
				t.Fatalf("%s: unset = %v, want %v", stage, out.Patch.Unset, OwnedKeys(stage))
			}
		}
	}
}

func TestOverrideKeepsOtherSubflowFields(t *testing.T) {
	e := newTestEngine(t)
	store := state.NewMemoryStore(Initial)
	store.GetOrCreate("u1")
	store.Update("u1", Searching, state.Patch{Set: map[string]string{KeySearchLocation: "Pune", KeyPropertyID: "P101"}})

	converse(e, store, "u1", "back")

	s, _ := store.Get("u1")
	if s.Stage != Start {
		t.Fatalf("stage = %s", s.Stage)
	}
	if _, ok := s.Value(KeySearchLocation); ok {
		t.Fatalf("search location should be reset when leaving search")
	}
	if v, _ := s.Value(KeyPropertyID); v != "P101" {
		t.Fatalf("unrelated field lost: %v", s.Context)
	}
}

func TestUnknownStageResetsToGreeting(t *testing.T) {
	e := newTestEngine(t)
	out := e.Decide(Turn{UserID: "u1", Stage: "BOGUS", Context: map[string]string{KeyType: "Buy"}, Text: "1"})
	if out.Stage != Start || !out.Patch.Reset || out.Route != "default.reset" {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestKeywordPrecedenceFollowsDeclarationOrder(t *testing.T) {
	e := newTestEngine(t)
	cases := []struct {
		stage state.Stage
		text  string
		route string
	}{
		{MainMenu, "Search Properties", "main.search"},
		{MainMenu, "schedule a visit to see property details", "main.schedule"},
		{MainMenu, "More Options", "main.more"},
		{MainMenu, "property help", "main.info"},
		{MainMenu, "back to search", "override.menu"},
		{MoreOptions, "Property Info", "more.info"},
		{MoreOptions, "contact agent for help", "more.agent"},
		{Start, "1", "start.buy"},
		{Start, "Rent Property", "start.rent"},
		{Start, "Explore Services", "start.explore"},
		{Start, "12", "start.default"},
	}
	for _, tc := range cases {
		out := e.Decide(Turn{UserID: "u1", Stage: tc.stage, Context: map[string]string{}, Text: tc.text})
		if out.Route != tc.route {
			t.Fatalf("%s %q: route = %s, want %s", tc.stage, tc.text, out.Route, tc.route)
		}
	}
}

func TestOptionLabelsRouteWhereOffered(t *testing.T) {
	e := newTestEngine(t)
	cases := []struct {
		stage state.Stage
		ctx   map[string]string
		label string
		want  state.Stage
	}{
		{Start, nil, OptBuy, AwaitingBudget},
		{Start, nil, OptRent, AwaitingCity},
		{Start, nil, OptExplore, MainMenu},
		{MainMenu, nil, OptSearch, Searching},
		{MainMenu, nil, OptSchedule, Scheduling},
		{MainMenu, nil, OptMore, MoreOptions},
		{MoreOptions, nil, OptPropertyInfo, PropertyInfo},
		{MoreOptions, nil, OptContactAgent, ContactAgent},
		{MoreOptions, nil, OptHelp, Help},
		{Searching, map[string]string{KeySearchLocation: "Pune"}, OptSchedule, Scheduling},
		{Searching, map[string]string{KeySearchLocation: "Pune"}, OptPropertyInfo, PropertyInfo},
		{Searching, map[string]string{KeySearchLocation: "Pune"}, OptNewSearch, Searching},
		{ViewingConfirmed, map[string]string{KeyViewingSlot: "Sat"}, OptReschedule, Scheduling},
		{ViewingConfirmed, map[string]string{KeyViewingSlot: "Sat"}, OptContactAgent, ContactAgent},
		{PropertyDetails, map[string]string{KeyPropertyID: "P101"}, OptSchedule, Scheduling},
		{PropertyDetails, map[string]string{KeyPropertyID: "P101"}, OptContactAgent, ContactAgent},
		{PropertyDetails, map[string]string{KeyPropertyID: "P101"}, OptAnotherProperty, PropertyInfo},
	}
	for _, tc := range cases {
		out := e.Decide(Turn{UserID: "u1", Stage: tc.stage, Context: tc.ctx, Text: tc.label})
		if out.Stage != tc.want {
			t.Fatalf("%s %q: stage = %s (route %s), want %s", tc.stage, tc.label, out.Stage, out.Route, tc.want)
		}
	}
}

func TestSearchCollectThenPresent(t *testing.T) {
	e := newTestEngine(t)

	collect := e.Decide(Turn{UserID: "u1", Stage: MainMenu, Context: map[string]string{}, Text: "search"})
	if collect.Stage != Searching || body(collect) != askLocationText {
		t.Fatalf("expected collect prompt, got %+v", collect)
	}

	got := e.Decide(Turn{UserID: "u1", Stage: Searching, Context: map[string]string{}, Text: "Pune"})
	if got.Patch.Set[KeySearchLocation] != "Pune" {
		t.Fatalf("location not stored: %+v", got.Patch)
	}
	if !strings.Contains(body(got), "P101") || !strings.Contains(body(got), "P102") || strings.Contains(body(got), "M201") {
		t.Fatalf("unexpected results %q", body(got))
	}

	present := e.Decide(Turn{UserID: "u1", Stage: MainMenu, Context: map[string]string{KeySearchLocation: "Pune"}, Text: "find"})
	if present.Stage != Searching || strings.Contains(body(present), askLocationText) || !strings.Contains(body(present), "Listings in Pune") {
		t.Fatalf("expected present phase, got %q", body(present))
	}
	if !present.Patch.IsZero() {
		t.Fatalf("present phase must not patch: %+v", present.Patch)
	}
}

func TestSearchWithoutResults(t *testing.T) {
	e := newTestEngine(t)
	out := e.Decide(Turn{UserID: "u1", Stage: Searching, Context: map[string]string{}, Text: "Chennai"})
	if !strings.Contains(body(out), "No listings found in Chennai") {
		t.Fatalf("unexpected body %q", body(out))
	}
}

func TestSearchLimit(t *testing.T) {
	c, err := catalog.New([]catalog.Listing{{ID: "A1", City: "Pune"}, {ID: "A2", City: "Pune"}, {ID: "A3", City: "Pune"}})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	e := New(c, WithSearchLimit(1))
	out := e.Decide(Turn{UserID: "u1", Stage: Searching, Text: "pune"})
	if strings.Count(body(out), "•") != 1 {
		t.Fatalf("expected one listing, got %q", body(out))
	}
}

func TestNewSearchUnsetsLocation(t *testing.T) {
	e := newTestEngine(t)
	out := e.Decide(Turn{UserID: "u1", Stage: Searching, Context: map[string]string{KeySearchLocation: "Pune"}, Text: "another city"})
	if out.Route != "search.new" || !slices.Equal(out.Patch.Unset, []string{KeySearchLocation}) || body(out) != askLocationText {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestViewingBookingEndsConversation(t *testing.T) {
	e := newTestEngine(t)
	store := state.NewMemoryStore(Initial)

	outs := converse(e, store, "u3", "hi", "3", "schedule", "Saturday 11am", "confirm")
	if outs[2].Stage != Scheduling || body(outs[2]) != askSlotText {
		t.Fatalf("expected slot prompt, got %+v", outs[2])
	}
	if outs[3].Stage != ViewingConfirmed || !strings.Contains(body(outs[3]), "Saturday 11am") {
		t.Fatalf("expected confirmation, got %+v", outs[3])
	}
	booked := outs[4]
	if !booked.End || booked.Lead == nil || booked.Lead.Kind != LeadViewing {
		t.Fatalf("booking should end with a viewing lead: %+v", booked)
	}
	if booked.Lead.Fields[KeyViewingSlot] != "Saturday 11am" {
		t.Fatalf("lead fields = %v", booked.Lead.Fields)
	}
	if store.Len() != 0 {
		t.Fatalf("session should be destroyed")
	}
}

func TestRescheduleClearsSlot(t *testing.T) {
	e := newTestEngine(t)
	out := e.Decide(Turn{UserID: "u1", Stage: ViewingConfirmed, Context: map[string]string{KeyViewingSlot: "Sat"}, Text: "Reschedule"})
	if out.Stage != Scheduling || !slices.Equal(out.Patch.Unset, []string{KeyViewingSlot}) {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestPropertyLookup(t *testing.T) {
	e := newTestEngine(t)

	miss := e.Decide(Turn{UserID: "u1", Stage: PropertyInfo, Context: map[string]string{}, Text: "X999"})
	if miss.Stage != PropertyInfo || !miss.Patch.IsZero() || !strings.Contains(body(miss), "X999") {
		t.Fatalf("unknown id must not advance: %+v", miss)
	}

	hit := e.Decide(Turn{UserID: "u1", Stage: PropertyInfo, Context: map[string]string{}, Text: " p101 "})
	if hit.Stage != PropertyDetails || hit.Patch.Set[KeyPropertyID] != "P101" {
		t.Fatalf("unexpected outcome %+v", hit)
	}
	if !strings.Contains(body(hit), "Baner, Pune") {
		t.Fatalf("details missing location: %q", body(hit))
	}

	again := e.Decide(Turn{UserID: "u1", Stage: MoreOptions, Context: map[string]string{KeyPropertyID: "P101"}, Text: "info"})
	if again.Stage != PropertyDetails || !again.Patch.IsZero() {
		t.Fatalf("re-entry should present details: %+v", again)
	}
}

func TestAgentCallbackRecordsLeadOnce(t *testing.T) {
	e := newTestEngine(t)
	store := state.NewMemoryStore(Initial)

	outs := converse(e, store, "u4", "hi", "explore", "more", "contact agent", "Need a 2BHK near Baner, call after 6pm", "anything else")
	if body(outs[3]) != askAgentText {
		t.Fatalf("expected agent prompt, got %q", body(outs[3]))
	}
	ack := outs[4]
	if ack.Lead == nil || ack.Lead.Kind != LeadAgentCallback || ack.End {
		t.Fatalf("unexpected ack %+v", ack)
	}
	if outs[5].Lead != nil || !strings.Contains(body(outs[5]), "call after 6pm") {
		t.Fatalf("repeat should re-present without a new lead: %+v", outs[5])
	}
}

func TestEmptyInputReasks(t *testing.T) {
	e := newTestEngine(t)
	cases := map[state.Stage]string{
		AwaitingBudget: askBudgetText,
		AwaitingCity:   askCityText,
		Searching:      askLocationText,
		Scheduling:     askSlotText,
		PropertyInfo:   askPropertyIDText,
		ContactAgent:   askAgentText,
	}
	for stage, prompt := range cases {
		out := e.Decide(Turn{UserID: "u1", Stage: stage, Context: map[string]string{}, Text: "   "})
		if out.Stage != stage || !out.Patch.IsZero() || out.End || body(out) != prompt {
			t.Fatalf("%s: unexpected outcome %+v", stage, out)
		}
	}
}

func TestEveryStageHasRoutes(t *testing.T) {
	e := newTestEngine(t)
	for _, s := range Stages() {
		tb, ok := e.tables[s]
		if !ok || tb.fallback.run == nil {
			t.Fatalf("stage %s has no fallback", s)
		}
		out := e.Decide(Turn{UserID: "u1", Stage: s, Text: "zzz"})
		if !Known(out.Stage) {
			t.Fatalf("stage %s produced unknown stage %q", s, out.Stage)
		}
		if len(out.Directives) == 0 {
			t.Fatalf("stage %s produced no directive", s)
		}
	}
}
