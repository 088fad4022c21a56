// Package passport holds the digital passport domain types shared by the
// issuance pipeline and its front ends.
package passport

import (
	"fmt"
	"strings"
	"time"
)

// Locator is a content-addressed URI for an uploaded artifact, e.g.
// "ipfs://bafy.../metadata.json". It is embedded verbatim in the mint call.
type Locator string

func (l Locator) String() string { return string(l) }

// Draft holds the user-entered passport fields before submission.
// DateOfBirth is Unix seconds; zero means unset.
type Draft struct {
	FullName     string `json:"full_name"`
	PlaceOfBirth string `json:"place_of_birth"`
	DateOfBirth  int64  `json:"date_of_birth"`
}

// Validate reports whether the draft can be submitted. Whitespace-only
// fields count as empty.
func (d Draft) Validate() error {
	switch {
	case strings.TrimSpace(d.FullName) == "":
		return fmt.Errorf("%w: full name is required", ErrIncompleteDraft)
	case strings.TrimSpace(d.PlaceOfBirth) == "":
		return fmt.Errorf("%w: place of birth is required", ErrIncompleteDraft)
	case d.DateOfBirth == 0:
		return fmt.Errorf("%w: date of birth is required", ErrIncompleteDraft)
	}
	return nil
}

// Birth returns the date of birth as a UTC time.
func (d Draft) Birth() time.Time {
	return time.Unix(d.DateOfBirth, 0).UTC()
}

// Record is the authoritative passport stored by the contract.
type Record struct {
	Name         string `json:"name"`
	PlaceOfBirth string `json:"place_of_birth"`
	DateOfBirth  int64  `json:"date_of_birth"`
	IssueDate    int64  `json:"issue_date"`
}

// Birth returns the recorded date of birth as a UTC time.
func (r Record) Birth() time.Time {
	return time.Unix(r.DateOfBirth, 0).UTC()
}

// Issued returns the issue date as a UTC time.
func (r Record) Issued() time.Time {
	return time.Unix(r.IssueDate, 0).UTC()
}

// dateLayout is the calendar date format accepted from users.
const dateLayout = "2006-01-02"

// ParseDate converts a YYYY-MM-DD calendar date to Unix seconds at UTC
// midnight.
func ParseDate(s string) (int64, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: date must be YYYY-MM-DD", ErrIncompleteDraft)
	}
	return t.Unix(), nil
}

// FormatDate renders Unix seconds as a YYYY-MM-DD calendar date, or "" for
// the unset sentinel.
func FormatDate(unix int64) string {
	if unix == 0 {
		return ""
	}
	return time.Unix(unix, 0).UTC().Format(dateLayout)
}
