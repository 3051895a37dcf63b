// Package phi minimizes client identity before text leaves the system.
//
// Prompts and outbound messages carry only a first name and last initial.
// Internal identifiers stay in audit records and call metadata.
package phi

import "strings"

// RedactionClientName is reported when a client name was minimized.
const RedactionClientName = "client_name_minimized"

// ClientLabel returns "First L." with "Client" and "X" substituted for blank parts.
func ClientLabel(firstName, lastInitial string) string {
	first := strings.TrimSpace(firstName)
	if first == "" {
		first = "Client"
	}
	li := strings.TrimSpace(lastInitial)
	if li == "" {
		li = "X"
	} else {
		li = string([]rune(li)[:1])
	}
	return first + " " + li + "."
}

// MaskPhone keeps only the last four digits of a phone number.
func MaskPhone(phone string) string {
	p := strings.TrimSpace(phone)
	if p == "" {
		return ""
	}
	r := []rune(p)
	if len(r) <= 4 {
		return strings.Repeat("*", len(r))
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}
