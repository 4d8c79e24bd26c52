package dialog

import (
	"fmt"
	"strings"

	"github.com/m3rciful/propbot/core/catalog"
)

// Quick-reply labels. Each label contains a keyword of the stage it is offered in.
const (
	OptBuy             = "Buy Property"
	OptRent            = "Rent Property"
	OptExplore         = "Explore Services"
	OptSearch          = "Search Properties"
	OptSchedule        = "Schedule Viewing"
	OptMore            = "More Options"
	OptPropertyInfo    = "Property Info"
	OptContactAgent    = "Contact Agent"
	OptHelp            = "Help"
	OptNewSearch       = "New Search"
	OptConfirm         = "Confirm"
	OptReschedule      = "Reschedule"
	OptAnotherProperty = "Another Property"
)

const notAvailable = "N/A"

const (
	greetingText = "Welcome to PropBot! 🏠\n" +
		"How can we help you today?\n" +
		"1. Buy Property\n" +
		"2. Rent Property\n" +
		"3. Explore Services"
	askBudgetText = "Great! What is your budget? (e.g. 50L, 1.2Cr)"
	askCityText   = "Which city are you looking in?"
	mainMenuText  = "What would you like to do next?\n" +
		"• Search Properties\n" +
		"• Schedule Viewing\n" +
		"• More Options\n" +
		"Type 'menu' at any time to start over."
	moreOptionsText = "More options:\n" +
		"• Property Info\n" +
		"• Contact Agent\n" +
		"• Help"
	askLocationText   = "Which city or locality should we search in?"
	askSlotText       = "When would you like to visit? Send a day and time (e.g. Saturday 11am)."
	askPropertyIDText = "Please send the property ID (e.g. P101)."
	askAgentText      = "Tell us what you need and a good time to call. An agent will get back to you."
	helpText          = "Here is what I understand:\n" +
		"• buy / rent: start a property enquiry\n" +
		"• search: find listings by city or locality\n" +
		"• schedule: book a property viewing\n" +
		"• info: look up a property by ID\n" +
		"• agent: request a callback\n" +
		"• menu or back: return to the start"
)

func summaryText(ctx map[string]string) string {
	return fmt.Sprintf("Thank you! Here is your enquiry:\nType: %s\nBudget: %s\nCity: %s\nOur agent will contact you soon.",
		orNA(ctx[KeyType]), orNA(ctx[KeyBudget]), orNA(ctx[KeyCity]))
}

func resultsText(location string, found []catalog.Listing) string {
	if len(found) == 0 {
		return fmt.Sprintf("No listings found in %s yet. Choose 'New Search' to try another location.", location)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Listings in %s:\n", location)
	for _, l := range found {
		b.WriteString("• ")
		b.WriteString(l.Headline())
		b.WriteByte('\n')
	}
	b.WriteString("Reply with a property ID via 'Property Info', or schedule a viewing.")
	return b.String()
}

func confirmText(ctx map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Viewing requested for %s", ctx[KeyViewingSlot])
	if id := ctx[KeyPropertyID]; id != "" {
		fmt.Fprintf(&b, " (property %s)", id)
	}
	b.WriteString(".\nShall I confirm the booking?")
	return b.String()
}

func bookedText(ctx map[string]string) string {
	var b strings.Builder
	b.WriteString("Your viewing is booked!\n")
	fmt.Fprintf(&b, "Slot: %s\n", ctx[KeyViewingSlot])
	if id := ctx[KeyPropertyID]; id != "" {
		fmt.Fprintf(&b, "Property: %s\n", id)
	}
	if loc := ctx[KeySearchLocation]; loc != "" {
		fmt.Fprintf(&b, "Location: %s\n", loc)
	}
	b.WriteString("An agent will confirm the visit shortly.")
	return b.String()
}

func notFoundText(id string) string {
	return fmt.Sprintf("Sorry, no property with ID %s. Please check the ID and send it again.", id)
}

func detailsText(l catalog.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", l.ID, l.Title)
	place := l.City
	if l.Locality != "" {
		place = l.Locality + ", " + l.City
	}
	fmt.Fprintf(&b, "Location: %s\n", place)
	if l.Deal != "" {
		fmt.Fprintf(&b, "For: %s\n", l.Deal)
	}
	fmt.Fprintf(&b, "Price: %s\n", l.Price)
	if l.Bedrooms > 0 {
		fmt.Fprintf(&b, "Bedrooms: %d\n", l.Bedrooms)
	}
	if l.AreaSqft > 0 {
		fmt.Fprintf(&b, "Area: %d sq ft\n", l.AreaSqft)
	}
	if l.Description != "" {
		b.WriteString(l.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func ackText(query string) string {
	return fmt.Sprintf("Thanks! An agent will call you back about: %s\nType 'menu' to return to the start.", query)
}

func orNA(v string) string {
	if strings.TrimSpace(v) == "" {
		return notAvailable
	}
	return v
}
