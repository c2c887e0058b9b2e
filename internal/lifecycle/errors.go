package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harrison/ptw/internal/models"
)

// ErrInvalidTransition matches every *TransitionError via errors.Is.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// ErrNotTemplate is returned when a permit that is not a template is used as one.
var ErrNotTemplate = errors.New("permit is not a template")

// TransitionError reports a refused lifecycle action.
type TransitionError struct {
	Action Action
	From   models.Status
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s permit in %s: %s", e.Action, e.From, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidTransition) match.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// PartialSignOffError is returned by Complete when a sign-off half was
// recorded but the permit still waits for the other half. Permit holds the
// updated copy and must be saved; retrieve it with errors.As.
type PartialSignOffError struct {
	Permit  *models.Permit
	Signed  []string
	Missing []string
}

func (e *PartialSignOffError) Error() string {
	return fmt.Sprintf("permit %s: %s signed off, missing %s",
		e.Permit.ID, strings.Join(e.Signed, " and "), strings.Join(e.Missing, " and "))
}
