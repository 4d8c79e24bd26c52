// Package dialog implements the conversation state machine.
//
// The Engine is pure: given the current stage, the session context and the
// user's input it returns the next stage, a context patch and the directives
// to send. Persisting the result and delivering the directives is left to
// the caller.
package dialog

import (
	"maps"

	"github.com/m3rciful/propbot/core/catalog"
	"github.com/m3rciful/propbot/core/state"
)

// Listings is the read-only catalog consulted by the search and info flows.
type Listings interface {
	Search(location string, limit int) []catalog.Listing
	Find(id string) (catalog.Listing, bool)
}

// Turn is one inbound message applied to a session snapshot.
type Turn struct {
	UserID  string
	Stage   state.Stage
	Context map[string]string
	Text    string
}

// Outcome is the result of a transition.
type Outcome struct {
	Stage      state.Stage
	Patch      state.Patch
	Directives []Directive
	// End destroys the session once the outcome is committed.
	End  bool
	Lead *Lead
	// Route names the rule that fired.
	Route string
}

// Option configures an Engine.
type Option func(*Engine)

// WithSearchLimit caps the number of listings shown per search. Non-positive values are ignored.
func WithSearchLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.searchLimit = n
		}
	}
}

const defaultSearchLimit = 3

// overrideWords return the user to the greeting from any stage.
var overrideWords = []string{"menu", "back"}

// Engine decides transitions using per-stage route tables.
type Engine struct {
	listings    Listings
	searchLimit int
	tables      map[state.Stage]table
}

// New builds an engine backed by listings, which may be nil.
func New(listings Listings, opts ...Option) *Engine {
	e := &Engine{listings: listings, searchLimit: defaultSearchLimit}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.tables = routes()
	return e
}

// Welcome greets a user whose session was just created. The triggering input is not interpreted.
func (e *Engine) Welcome(userID string) Outcome {
	out := greet(userID)
	out.Route = "welcome"
	return out
}

// Decide computes the transition for t. It never fails: unknown stages fall
// back to the greeting with a cleared context and unrecognized input re-prompts.
func (e *Engine) Decide(t Turn) Outcome {
	in := newInput(t.Text)

	if !Known(t.Stage) {
		out := greet(t.UserID)
		out.Patch = state.Patch{Reset: true}
		out.Route = "default.reset"
		return out
	}

	if containsAny(in.lower, overrideWords) {
		out := greet(t.UserID)
		out.Patch = state.Patch{Unset: OwnedKeys(t.Stage)}
		out.Route = "override.menu"
		return out
	}

	r := e.tables[t.Stage].pick(in, t.Context)
	out := r.run(e, t, in)
	if out.Route == "" {
		out.Route = r.name
	}
	return out
}

func routes() map[state.Stage]table {
	return map[state.Stage]table{
		Start: {
			rules: []rule{
				{name: "start.buy", match: anyOf(exact("1"), keywords("buy")), run: (*Engine).startBuy},
				{name: "start.rent", match: anyOf(exact("2"), keywords("rent")), run: (*Engine).startRent},
				{name: "start.explore", match: anyOf(exact("3"), keywords("explore", "services", "options")), run: (*Engine).showMainMenu},
			},
			fallback: rule{name: "start.default", run: (*Engine).showGreeting},
		},
		AwaitingBudget: {
			fallback: rule{name: "budget.collect", run: (*Engine).collectBudget},
		},
		AwaitingCity: {
			fallback: rule{name: "city.summary", run: (*Engine).collectCity},
		},
		MainMenu: {
			rules: []rule{
				{name: "main.search", match: keywords("search", "find", "listing"), run: (*Engine).enterSearch},
				{name: "main.schedule", match: keywords("schedule", "visit", "viewing"), run: (*Engine).enterScheduling},
				{name: "main.more", match: keywords("more", "options"), run: (*Engine).showMoreOptions},
				{name: "main.info", match: keywords("info", "details", "property"), run: (*Engine).enterPropertyInfo},
				{name: "main.agent", match: keywords("agent", "contact", "call"), run: (*Engine).enterAgent},
				{name: "main.help", match: keywords("help"), run: (*Engine).showHelp},
			},
			fallback: rule{name: "main.default", run: (*Engine).showMainMenu},
		},
		MoreOptions: {
			rules: []rule{
				{name: "more.info", match: keywords("info", "details", "property"), run: (*Engine).enterPropertyInfo},
				{name: "more.agent", match: keywords("agent", "contact", "call"), run: (*Engine).enterAgent},
				{name: "more.help", match: keywords("help"), run: (*Engine).showHelp},
			},
			fallback: rule{name: "more.default", run: (*Engine).showMoreOptions},
		},
		Searching: {
			rules: []rule{
				{name: "search.schedule", match: with(KeySearchLocation, keywords("schedule", "visit")), run: (*Engine).enterScheduling},
				{name: "search.info", match: with(KeySearchLocation, keywords("info", "details")), run: (*Engine).enterPropertyInfo},
				{name: "search.new", match: with(KeySearchLocation, keywords("new search", "another", "change")), run: (*Engine).newSearch},
			},
			fallback: rule{name: "search.default", run: (*Engine).searchDefault},
		},
		Scheduling: {
			fallback: rule{name: "schedule.collect", run: (*Engine).collectSlot},
		},
		ViewingConfirmed: {
			rules: []rule{
				{name: "viewing.confirm", match: with(KeyViewingSlot, keywords("confirm", "yes", "book")), run: (*Engine).bookViewing},
				{name: "viewing.reschedule", match: keywords("reschedule", "change"), run: (*Engine).reschedule},
				{name: "viewing.agent", match: keywords("agent", "contact"), run: (*Engine).enterAgent},
			},
			fallback: rule{name: "viewing.default", run: (*Engine).viewingDefault},
		},
		PropertyInfo: {
			fallback: rule{name: "info.lookup", run: (*Engine).lookupProperty},
		},
		PropertyDetails: {
			rules: []rule{
				{name: "details.schedule", match: keywords("schedule", "visit"), run: (*Engine).enterScheduling},
				{name: "details.agent", match: keywords("agent", "contact", "call"), run: (*Engine).enterAgent},
				{name: "details.another", match: keywords("another", "other"), run: (*Engine).anotherProperty},
			},
			fallback: rule{name: "details.default", run: (*Engine).detailsDefault},
		},
		ContactAgent: {
			fallback: rule{name: "agent.collect", run: (*Engine).collectAgentQuery},
		},
		Help: {
			fallback: rule{name: "help.default", run: (*Engine).showHelp},
		},
	}
}

func greet(to string) Outcome {
	return Outcome{Stage: Start, Directives: []Directive{Choice(to, greetingText, OptBuy, OptRent, OptExplore)}}
}

func reply(stage state.Stage, ds ...Directive) Outcome {
	return Outcome{Stage: stage, Directives: ds}
}

func set(key, value string) state.Patch {
	return state.Patch{Set: map[string]string{key: value}}
}

func unset(keys ...string) state.Patch {
	return state.Patch{Unset: keys}
}

// withValue returns a copy of ctx with key set, for rendering before the patch is committed.
func withValue(ctx map[string]string, key, value string) map[string]string {
	out := maps.Clone(ctx)
	if out == nil {
		out = make(map[string]string, 1)
	}
	out[key] = value
	return out
}

func pickFields(ctx map[string]string, keys ...string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v := ctx[k]; v != "" {
			out[k] = v
		}
	}
	return out
}

// START

func (e *Engine) showGreeting(t Turn, _ input) Outcome { return greet(t.UserID) }

func (e *Engine) startBuy(t Turn, _ input) Outcome {
	out := reply(AwaitingBudget, Plain(t.UserID, askBudgetText))
	out.Patch = set(KeyType, "Buy")
	return out
}

func (e *Engine) startRent(t Turn, _ input) Outcome {
	out := reply(AwaitingCity, Plain(t.UserID, askCityText))
	out.Patch = set(KeyType, "Rent")
	return out
}

// Buy/rent intake

func (e *Engine) collectBudget(t Turn, in input) Outcome {
	if in.empty() {
		return reply(AwaitingBudget, Plain(t.UserID, askBudgetText))
	}
	out := reply(AwaitingCity, Plain(t.UserID, askCityText))
	out.Patch = set(KeyBudget, in.text)
	return out
}

func (e *Engine) collectCity(t Turn, in input) Outcome {
	if in.empty() {
		return reply(AwaitingCity, Plain(t.UserID, askCityText))
	}
	ctx := withValue(t.Context, KeyCity, in.text)
	out := reply(Initial, Plain(t.UserID, summaryText(ctx)))
	out.Patch = set(KeyCity, in.text)
	out.End = true
	out.Lead = newLead(t.UserID, LeadEnquiry, map[string]string{
		KeyType:   orNA(ctx[KeyType]),
		KeyBudget: orNA(ctx[KeyBudget]),
		KeyCity:   ctx[KeyCity],
	})
	return out
}

// Menus

func (e *Engine) showMainMenu(t Turn, _ input) Outcome {
	return reply(MainMenu, Choice(t.UserID, mainMenuText, OptSearch, OptSchedule, OptMore))
}

func (e *Engine) showMoreOptions(t Turn, _ input) Outcome {
	return reply(MoreOptions, Choice(t.UserID, moreOptionsText, OptPropertyInfo, OptContactAgent, OptHelp))
}

func (e *Engine) showHelp(t Turn, _ input) Outcome {
	return reply(Help, Plain(t.UserID, helpText))
}

// Search sub-flow, keyed by search_location.

func (e *Engine) enterSearch(t Turn, _ input) Outcome {
	if loc := t.Context[KeySearchLocation]; loc != "" {
		return e.presentResults(t.UserID, loc)
	}
	return reply(Searching, Plain(t.UserID, askLocationText))
}

func (e *Engine) presentResults(to, location string) Outcome {
	var found []catalog.Listing
	if e.listings != nil {
		found = e.listings.Search(location, e.searchLimit)
	}
	return reply(Searching, Choice(to, resultsText(location, found), OptSchedule, OptPropertyInfo, OptNewSearch))
}

func (e *Engine) searchDefault(t Turn, in input) Outcome {
	if loc := t.Context[KeySearchLocation]; loc != "" {
		return e.presentResults(t.UserID, loc)
	}
	if in.empty() {
		return reply(Searching, Plain(t.UserID, askLocationText))
	}
	out := e.presentResults(t.UserID, in.text)
	out.Patch = set(KeySearchLocation, in.text)
	return out
}

func (e *Engine) newSearch(t Turn, _ input) Outcome {
	out := reply(Searching, Plain(t.UserID, askLocationText))
	out.Patch = unset(KeySearchLocation)
	return out
}

// Viewing sub-flow, keyed by viewing_slot.

func (e *Engine) enterScheduling(t Turn, _ input) Outcome {
	if t.Context[KeyViewingSlot] != "" {
		return presentConfirmation(t.UserID, t.Context)
	}
	return reply(Scheduling, Plain(t.UserID, askSlotText))
}

func presentConfirmation(to string, ctx map[string]string) Outcome {
	return reply(ViewingConfirmed, Choice(to, confirmText(ctx), OptConfirm, OptReschedule, OptContactAgent))
}

func (e *Engine) collectSlot(t Turn, in input) Outcome {
	if in.empty() {
		return reply(Scheduling, Plain(t.UserID, askSlotText))
	}
	out := presentConfirmation(t.UserID, withValue(t.Context, KeyViewingSlot, in.text))
	out.Patch = set(KeyViewingSlot, in.text)
	return out
}

func (e *Engine) bookViewing(t Turn, _ input) Outcome {
	out := reply(Initial, Plain(t.UserID, bookedText(t.Context)))
	out.End = true
	out.Lead = newLead(t.UserID, LeadViewing, pickFields(t.Context, KeyViewingSlot, KeyPropertyID, KeySearchLocation))
	return out
}

func (e *Engine) reschedule(t Turn, _ input) Outcome {
	out := reply(Scheduling, Plain(t.UserID, askSlotText))
	out.Patch = unset(KeyViewingSlot)
	return out
}

func (e *Engine) viewingDefault(t Turn, in input) Outcome {
	return e.enterScheduling(t, in)
}

// Property info sub-flow, keyed by property_id.

func (e *Engine) enterPropertyInfo(t Turn, _ input) Outcome {
	if id := t.Context[KeyPropertyID]; id != "" {
		return e.presentDetails(t.UserID, id)
	}
	return reply(PropertyInfo, Plain(t.UserID, askPropertyIDText))
}

func (e *Engine) find(id string) (catalog.Listing, bool) {
	if e.listings == nil {
		return catalog.Listing{}, false
	}
	return e.listings.Find(id)
}

func (e *Engine) presentDetails(to, id string) Outcome {
	l, ok := e.find(id)
	if !ok {
		out := reply(PropertyInfo, Plain(to, askPropertyIDText))
		out.Patch = unset(KeyPropertyID)
		return out
	}
	return reply(PropertyDetails, Choice(to, detailsText(l), OptSchedule, OptContactAgent, OptAnotherProperty))
}

func (e *Engine) lookupProperty(t Turn, in input) Outcome {
	if in.empty() {
		return reply(PropertyInfo, Plain(t.UserID, askPropertyIDText))
	}
	l, ok := e.find(in.text)
	if !ok {
		return reply(PropertyInfo, Plain(t.UserID, notFoundText(in.text)))
	}
	out := e.presentDetails(t.UserID, l.ID)
	out.Patch = set(KeyPropertyID, l.ID)
	return out
}

func (e *Engine) detailsDefault(t Turn, in input) Outcome {
	return e.enterPropertyInfo(t, in)
}

func (e *Engine) anotherProperty(t Turn, _ input) Outcome {
	out := reply(PropertyInfo, Plain(t.UserID, askPropertyIDText))
	out.Patch = unset(KeyPropertyID)
	return out
}

// Agent callback sub-flow, keyed by agent_query.

func (e *Engine) enterAgent(t Turn, _ input) Outcome {
	if q := t.Context[KeyAgentQuery]; q != "" {
		return reply(ContactAgent, Plain(t.UserID, ackText(q)))
	}
	return reply(ContactAgent, Plain(t.UserID, askAgentText))
}

func (e *Engine) collectAgentQuery(t Turn, in input) Outcome {
	if q := t.Context[KeyAgentQuery]; q != "" {
		return reply(ContactAgent, Plain(t.UserID, ackText(q)))
	}
	if in.empty() {
		return reply(ContactAgent, Plain(t.UserID, askAgentText))
	}
	out := reply(ContactAgent, Plain(t.UserID, ackText(in.text)))
	out.Patch = set(KeyAgentQuery, in.text)
	ctx := withValue(t.Context, KeyAgentQuery, in.text)
	out.Lead = newLead(t.UserID, LeadAgentCallback, pickFields(ctx, KeyAgentQuery, KeyPropertyID, KeySearchLocation, KeyViewingSlot))
	return out
}
