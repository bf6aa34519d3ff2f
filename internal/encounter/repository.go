// Package encounter exposes read-only access to a patient's most recent
// medical encounter and the orientations recorded during it. This is the
// grounding material the assistant is allowed to answer from.
package encounter

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Encounter is one recorded medical visit.
type Encounter struct {
	ID         int64
	PatientID  int64
	DoctorName string
	Specialty  string
	Date       time.Time
}

// Orientation is a single piece of guidance given during an encounter.
type Orientation struct {
	Type    string
	Content string
}

// Context bundles the latest encounter with its ordered orientations.
type Context struct {
	Encounter    Encounter
	Orientations []Orientation
}

// OrientationsText renders the orientations as the bullet list fed to the
// model prompt. Empty when there is nothing grounded to answer from.
func (c *Context) OrientationsText() string {
	var b strings.Builder
	for _, o := range c.Orientations {
		typ := o.Type
		if typ == "" {
			typ = "geral"
		}
		fmt.Fprintf(&b, "- %s: %s\n", typ, o.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DaysSince returns whole days elapsed between the encounter date and now.
func (c *Context) DaysSince(now time.Time) int {
	return int(now.Sub(c.Encounter.Date).Hours() / 24)
}

// Repository looks up encounter context for a patient.
type Repository interface {
	// LastEncounter returns the most recent encounter with its
	// orientations, or nil when the patient has none.
	LastEncounter(ctx context.Context, patientID int64) (*Context, error)
}
