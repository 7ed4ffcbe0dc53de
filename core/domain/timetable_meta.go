package domain

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Namespace tag. Only remote events carrying this marker, in either
// metadata channel, are ever read or mutated.
const (
	MetaAppKey   = "timetable_app"
	MetaAppValue = "v1"
)

// Structured property keys written to the remote event.
const (
	MetaKeyWeekday     = "timetable_weekday"
	MetaKeyPeriodStart = "timetable_period_start"
	MetaKeyPeriodEnd   = "timetable_period_end"
	MetaKeyCourseID    = "timetable_course_id"
	MetaKeySeriesID    = "timetable_series_id"
)

// Delimited description block. The same metadata is appended to the
// free-text description so that external edits which strip structured
// properties do not destroy recoverability.
const (
	metaBlockBegin = "-- timetable:v1 --"
	metaBlockEnd   = "-- /timetable --"
)

// SlotMeta is the versioned slot metadata carried by a remote event, in
// structured properties and again as a JSON block in the description.
type SlotMeta struct {
	App         string `json:"app"`
	Weekday     int    `json:"weekday"`
	PeriodStart int    `json:"period_start"`
	PeriodEnd   int    `json:"period_end"`
	CourseID    string `json:"course_id,omitempty"`
	SeriesID    string `json:"series_id,omitempty"`
}

// ToProperties renders the structured metadata channel.
func (m *SlotMeta) ToProperties() map[string]string {
	props := map[string]string{
		MetaAppKey:         MetaAppValue,
		MetaKeyWeekday:     strconv.Itoa(m.Weekday),
		MetaKeyPeriodStart: strconv.Itoa(m.PeriodStart),
		MetaKeyPeriodEnd:   strconv.Itoa(m.PeriodEnd),
	}
	if m.CourseID != "" {
		props[MetaKeyCourseID] = m.CourseID
	}
	if m.SeriesID != "" {
		props[MetaKeySeriesID] = m.SeriesID
	}
	return props
}

// MetaFromProperties parses the structured channel. Returns false when the
// namespace tag or any required field is missing or malformed.
func MetaFromProperties(props map[string]string) (*SlotMeta, bool) {
	if props[MetaAppKey] != MetaAppValue {
		return nil, false
	}

	weekday, err1 := strconv.Atoi(props[MetaKeyWeekday])
	pStart, err2 := strconv.Atoi(props[MetaKeyPeriodStart])
	pEnd, err3 := strconv.Atoi(props[MetaKeyPeriodEnd])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, false
	}

	return &SlotMeta{
		App:         MetaAppValue,
		Weekday:     weekday,
		PeriodStart: pStart,
		PeriodEnd:   pEnd,
		CourseID:    props[MetaKeyCourseID],
		SeriesID:    props[MetaKeySeriesID],
	}, true
}

// AppendMetaBlock appends the delimited JSON fallback block to a
// description.
func AppendMetaBlock(description string, m *SlotMeta) string {
	m.App = MetaAppValue
	data, err := json.Marshal(m)
	if err != nil {
		return description
	}

	var b strings.Builder
	b.WriteString(description)
	if description != "" && !strings.HasSuffix(description, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(metaBlockBegin)
	b.WriteString("\n")
	b.Write(data)
	b.WriteString("\n")
	b.WriteString(metaBlockEnd)
	return b.String()
}

// MetaFromDescription parses the fallback block out of a description.
// Returns false when no well-formed tagged block is present.
func MetaFromDescription(description string) (*SlotMeta, bool) {
	begin := strings.Index(description, metaBlockBegin)
	if begin < 0 {
		return nil, false
	}
	rest := description[begin+len(metaBlockBegin):]
	end := strings.Index(rest, metaBlockEnd)
	if end < 0 {
		return nil, false
	}

	var m SlotMeta
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &m); err != nil {
		return nil, false
	}
	if m.App != MetaAppValue {
		return nil, false
	}
	if m.Weekday < MinWeekday || m.Weekday > MaxWeekday ||
		m.PeriodStart < MinPeriod || m.PeriodEnd > MaxPeriod ||
		m.PeriodEnd < m.PeriodStart {
		return nil, false
	}
	return &m, true
}

// HasNamespaceTag reports whether either metadata channel carries the
// namespace tag.
func HasNamespaceTag(props map[string]string, description string) bool {
	if props[MetaAppKey] == MetaAppValue {
		return true
	}
	return strings.Contains(description, metaBlockBegin)
}
