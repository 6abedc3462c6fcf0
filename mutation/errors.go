package mutation

import (
	"fmt"

	"github.com/harborpoint/policykit/entity"
)

// ConcurrentMutationError reports an attempt to start a mutation on an
// entity that already has one in flight. The caller must wait for the first
// mutation to settle and resubmit.
type ConcurrentMutationError struct {
	Key entity.Key
}

// Error implements the error interface.
func (e *ConcurrentMutationError) Error() string {
	return fmt.Sprintf("mutation: %s already has a mutation in flight", e.Key)
}
