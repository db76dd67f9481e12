package models

import (
	"fmt"

	"github.com/skorper/harmony/pkg/permalink"
)

// PermalinkFunc rewrites an internal link href into a public URL rooted at
// urlRoot.
type PermalinkFunc func(href, urlRoot, mimeType, linkType string) (string, error)

// JobSettings is the construction context shared by all jobs of a process.
type JobSettings struct {
	DefaultMessages    map[JobStatus]string
	StagingBucketTitle string
	Permalink          PermalinkFunc
}

// NewJobSettings returns the stock messages and a staging title naming the
// given AWS region.
func NewJobSettings(awsRegion string) *JobSettings {
	return &JobSettings{
		DefaultMessages: map[JobStatus]string{
			JobStatusAccepted:   "The job has been accepted and is waiting to be processed",
			JobStatusRunning:    "The job is being processed",
			JobStatusSuccessful: "The job has completed successfully",
			JobStatusFailed:     "The job failed with an unknown error",
			JobStatusCanceled:   "The job was canceled",
		},
		StagingBucketTitle: fmt.Sprintf("Results in AWS S3. Access from AWS %s with keys from /cloud-access.sh", awsRegion),
		Permalink:          permalink.Public,
	}
}

func (s *JobSettings) isDefaultMessage(msg string) bool {
	for _, m := range s.DefaultMessages {
		if m == msg {
			return true
		}
	}
	return false
}
