package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Claimers of one type serialize on a shared advisory lock; the key must
// therefore be identical for the same type and distinct across types, or
// either the cap leaks or unrelated types contend.
func TestClaimLockKey(t *testing.T) {
	assert.Equal(t, claimLockKey(JobNewsCollection), claimLockKey(JobNewsCollection))

	seen := make(map[int64]JobType)
	for jobType := range Concurrency {
		key := claimLockKey(jobType)
		if prior, ok := seen[key]; ok {
			t.Fatalf("job types %q and %q share claim lock key %d", prior, jobType, key)
		}
		seen[key] = jobType
	}
}
