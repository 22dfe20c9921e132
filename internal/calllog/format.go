package calllog

import (
	"fmt"
	"strings"
)

// AppendFragment joins a transcript fragment onto existing notes with a
// single space. Blank notes are replaced by the fragment.
func AppendFragment(notes, fragment string) string {
	prev := strings.TrimSpace(notes)
	if prev == "" {
		return fragment
	}
	return prev + " " + fragment
}

// CopyInput is the form state rendered into the clipboard report.
type CopyInput struct {
	Summary      CallSummary
	Equipment    Equipment
	CustomerName string
	PhoneNumber  string
	TicketNumber string
}

// CopyText renders the fixed plain-text report pasted into the ticketing tool.
func CopyText(in CopyInput) string {
	ticket := in.TicketNumber
	if ticket == "" {
		ticket = "N/A"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "OBJET : %s\n", in.Summary.Subject)
	fmt.Fprintf(&b, "MATERIEL : %s\n", in.Equipment)
	fmt.Fprintf(&b, "CLIENT : %s (%s)\n", in.CustomerName, in.PhoneNumber)
	fmt.Fprintf(&b, "TICKET : %s\n\n", ticket)
	fmt.Fprintf(&b, "DIAGNOSTIC : %s\n", in.Summary.Issue)
	fmt.Fprintf(&b, "ACTIONS : %s\n", in.Summary.Solution)
	fmt.Fprintf(&b, "DECISION : %s", in.Summary.NextSteps)
	return b.String()
}
