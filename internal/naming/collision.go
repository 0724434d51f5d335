package naming

import (
	"errors"
	"fmt"
	"sync"
)

// ErrCollision is returned when an output path is already claimed by
// another input of the same batch.
var ErrCollision = errors.New("output collision")

// CollisionResolver tracks output paths claimed by inputs within one batch.
// All methods are goroutine-safe.
type CollisionResolver struct {
	mu     sync.Mutex
	owners map[string]string // output path → input that owns it
}

// NewCollisionResolver creates a ready-to-use resolver.
func NewCollisionResolver() *CollisionResolver {
	return &CollisionResolver{owners: make(map[string]string)}
}

// Claim records input as the owner of output. Claiming a path already owned
// by input is a no-op; a path owned by another input yields ErrCollision.
func (cr *CollisionResolver) Claim(input, output string) error {
	key := pathKey(output)

	cr.mu.Lock()
	defer cr.mu.Unlock()

	owner, exists := cr.owners[key]
	if exists && owner != input {
		return fmt.Errorf("%w: %s already written by %s", ErrCollision, output, owner)
	}
	cr.owners[key] = input
	return nil
}

// Owner returns the input that claimed output, if any.
func (cr *CollisionResolver) Owner(output string) (string, bool) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	owner, ok := cr.owners[pathKey(output)]
	return owner, ok
}
