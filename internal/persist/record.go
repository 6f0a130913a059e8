// Package persist stores the rendered transcript and UI preferences in durable key-value storage.
package persist

import (
	"html"
	"regexp"
	"slices"
	"strings"
)

// Display classes carried by records
const (
	ClassMessage  = "message"
	ClassUser     = "user-message"
	ClassBot      = "bot-message"
	ClassThinking = "thinking"
	ClassCanceled = "canceled"
	ClassError    = "error"
)

// Record is a snapshot of one rendered message. It's independent of the API-facing conversation history.
type Record struct {
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
	Classes []string `json:"classes"`
	TS      string   `json:"ts"`
}

// HasClass reports whether the record carries the display class
func (r Record) HasClass(class string) bool {
	return slices.Contains(r.Classes, class)
}

// IsUser reports whether the record is a user message
func (r Record) IsUser() bool {
	return r.HasClass(ClassUser)
}

// WithoutClass returns a copy of the record with class removed
func (r Record) WithoutClass(class string) Record {
	r.Classes = slices.DeleteFunc(slices.Clone(r.Classes), func(c string) bool { return c == class })
	return r
}

// WithClass returns a copy of the record with class added once
func (r Record) WithClass(class string) Record {
	if r.HasClass(class) {
		return r
	}
	r.Classes = append(slices.Clone(r.Classes), class)
	return r
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// PlainText reduces record markup to its visible text
func PlainText(markup string) string {
	return strings.TrimSpace(html.UnescapeString(tagPattern.ReplaceAllString(markup, "")))
}
