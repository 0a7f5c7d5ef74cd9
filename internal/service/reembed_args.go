package service

import (
	"context"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

const (
	vibeReembedKind = "vibe_reembed"
	// ReembedQueueName is the River queue used for vibe re-embedding jobs.
	ReembedQueueName = "reembed"
)

// ReembedInserter inserts re-embed jobs (e.g. River client).
type ReembedInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// VibeReembedArgs is the job payload for re-embedding one vibe with the current model.
// Uniqueness is by UID so repeated backfills do not stack jobs for the same vibe.
type VibeReembedArgs struct {
	UID string `json:"uid" river:"unique"`
}

// Kind returns the River job kind.
func (VibeReembedArgs) Kind() string { return vibeReembedKind }

var _ river.JobArgs = VibeReembedArgs{}
