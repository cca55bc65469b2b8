// Package notify tells people that a comment was posted. Delivery is best
// effort; callers log failures and carry on.
package notify

import (
	"context"
	"errors"
	"fmt"
)

type Notifier interface {
	Notify(ctx context.Context, parent, user string) error
}

// Message is the text sent to listeners.
func Message(parent, user string) string {
	return fmt.Sprintf("%s comment from %s", parent, user)
}

type Nop struct{}

func (Nop) Notify(ctx context.Context, parent, user string) error {
	return nil
}

// Multi sends to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, parent, user string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, parent, user); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
