package models

// JobListing is one page of serialized jobs along with its paging links.
type JobListing struct {
	Count int             `json:"count"`
	Jobs  []SerializedJob `json:"jobs"`
	Links []JobLink       `json:"links"`
}
