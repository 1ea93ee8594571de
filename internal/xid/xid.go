package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns prefix_<uuid v7>. The v7 layout keeps ids roughly ordered by
// creation time.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s_%s", prefix, id.String())
}
