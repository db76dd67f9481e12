package models

// JobLink is a typed reference to a result artifact or related resource.
type JobLink struct {
	Href     string         `json:"href"`
	Rel      string         `json:"rel"`
	Type     string         `json:"type,omitempty"`
	Title    string         `json:"title,omitempty"`
	BBox     []float64      `json:"bbox,omitempty"`
	Temporal *TemporalRange `json:"temporal,omitempty"`
}

// TemporalRange is the time span covered by a linked artifact.
type TemporalRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func filterLinks(links []JobLink, rel string) []JobLink {
	related := []JobLink{}
	for _, l := range links {
		if l.Rel == rel {
			related = append(related, l)
		}
	}
	return related
}
