package domain

import "strings"

// ExtractedFields is the structured result of the field extractor.
// Any field may be nil when the model could not find it.
type ExtractedFields struct {
	Title    *string  `json:"task_title"`
	Deadline *string  `json:"deadline"`
	Time     *string  `json:"task_time"`
	Assignor *string  `json:"task_giver"`
	Comment  *string  `json:"comment"`
	Links    []string `json:"links"`
}

// Normalize turns blank and literal "null" values into absent ones.
func (e *ExtractedFields) Normalize() {
	if e == nil {
		return
	}
	for _, p := range []**string{&e.Title, &e.Deadline, &e.Time, &e.Assignor, &e.Comment} {
		if *p == nil {
			continue
		}
		v := strings.TrimSpace(**p)
		if v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "none") {
			*p = nil
			continue
		}
		*p = &v
	}
	links := e.Links[:0]
	for _, l := range e.Links {
		if l = strings.TrimSpace(l); l != "" {
			links = append(links, l)
		}
	}
	e.Links = links
}
