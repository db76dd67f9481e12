package models

import (
	"fmt"
	"time"
)

// SerializedJob is the externally visible form of a job returned by the jobs
// endpoints. Internal bookkeeping such as batch counts never appears here.
type SerializedJob struct {
	JobID            string    `json:"jobID"`
	Username         string    `json:"username"`
	Status           JobStatus `json:"status"`
	Message          string    `json:"message"`
	Progress         int       `json:"progress"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	Links            []JobLink `json:"links"`
	Request          string    `json:"request"`
	NumInputGranules int       `json:"numInputGranules"`
}

// RelatedLinks returns the links whose rel matches, in order.
func (s *SerializedJob) RelatedLinks(rel string) []JobLink {
	return filterLinks(s.Links, rel)
}

// Serialize builds the presentation copy of the job. When urlRoot is set,
// every link except the staging bucket link is rewritten into a public
// permalink; linkType selects between http and s3 style data links.
func (j *Job) Serialize(urlRoot, linkType string) (*SerializedJob, error) {
	links := make([]JobLink, 0, len(j.Links))
	for _, l := range j.Links {
		if urlRoot != "" && l.Rel != StagingLinkRel {
			href, err := j.settings.Permalink(l.Href, urlRoot, l.Type, linkType)
			if err != nil {
				return nil, fmt.Errorf("link %q: %w", l.Href, err)
			}
			l.Href = href
		}
		links = append(links, l)
	}

	return &SerializedJob{
		JobID:            j.RequestID.String(),
		Username:         j.Username,
		Status:           j.Status,
		Message:          j.Message,
		Progress:         j.Progress,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		Links:            links,
		Request:          j.Request,
		NumInputGranules: j.NumInputGranules,
	}, nil
}
