package booking

import (
	"time"

	"github.com/trezcool/dojo/core"
)

// MaxWeeks bounds a recurring plan.
const MaxWeeks = 52

// Anchor is the occurrence a recurring plan starts from.
type Anchor struct {
	Pattern  string
	Date     time.Time
	TimeSlot string
}

func AnchorOf(s Session) Anchor {
	return Anchor{Pattern: s.Pattern(), Date: s.Date, TimeSlot: s.StartTime}
}

// Occurrence is one concrete date of a recurring pattern.
type Occurrence struct {
	Key      string    `json:"key"`
	Date     time.Time `json:"date"`
	TimeSlot string    `json:"time_slot"`
}

// Pattern is the weekly slot of a class, e.g. "bjj_fundamentals@18:30".
func Pattern(classID, timeSlot string) string {
	return classID + "@" + timeSlot
}

// OccurrenceKey names the occurrence of pattern on date, e.g. "bjj_fundamentals@18:30/2025-03-04".
// The same pattern and date always give the same key.
func OccurrenceKey(pattern string, date time.Time) string {
	return pattern + "/" + core.Date(date).Format(core.DateLayout)
}

// GenerateOccurrences returns the weeks occurrences of the anchor's slot, one every 7 days,
// the anchor itself first. Calendar months and years play no part.
func GenerateOccurrences(anchor Anchor, weeks int) ([]Occurrence, error) {
	var flds []core.FieldError
	if anchor.Pattern == "" {
		flds = append(flds, core.FieldError{Field: "pattern", Error: "this field is required"})
	}
	if anchor.Date.IsZero() {
		flds = append(flds, core.FieldError{Field: "date", Error: "this field is required"})
	}
	if weeks < 1 || weeks > MaxWeeks {
		flds = append(flds, core.FieldError{Field: "weeks", Error: "weeks must be between 1 and 52"})
	}
	if len(flds) > 0 {
		return nil, core.NewValidationError(nil, flds...)
	}

	start := core.Date(anchor.Date)
	occurrences := make([]Occurrence, 0, weeks)
	for i := 0; i < weeks; i++ {
		date := start.AddDate(0, 0, 7*i)
		occurrences = append(occurrences, Occurrence{
			Key:      OccurrenceKey(anchor.Pattern, date),
			Date:     date,
			TimeSlot: anchor.TimeSlot,
		})
	}
	return occurrences, nil
}
