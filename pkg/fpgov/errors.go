package fpgov

import (
	"errors"
	"fmt"
)

// ErrGovernance is the root of the governance error family; every illegal
// operation wraps it so callers can map the whole family to one HTTP status.
var ErrGovernance = errors.New("governance error")

// Specific governance violations. All satisfy errors.Is(err, ErrGovernance).
var (
	ErrSameApprover    = fmt.Errorf("%w: second approval requires a distinct approver", ErrGovernance)
	ErrAlreadyApproved = fmt.Errorf("%w: pattern is already fully approved", ErrGovernance)
	ErrNotApprovable   = fmt.Errorf("%w: pattern is not in an approvable status", ErrGovernance)
	ErrPatternNotFound = fmt.Errorf("%w: pattern not found", ErrGovernance)
	ErrShadowSignOff   = fmt.Errorf("%w: shadow mode cannot be disabled without go-live sign-off", ErrGovernance)
)
