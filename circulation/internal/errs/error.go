package errs

import (
	"errors"
	"fmt"
)

// Business-rule violations. These surface to the caller unchanged and are
// never retried.
var (
	ErrAlreadyCheckedOut      = errors.New("already checked out")
	ErrAlreadyOnHold          = errors.New("already on hold")
	ErrNotCheckedOut          = errors.New("not checked out")
	ErrNotOnHold              = errors.New("not on hold")
	ErrCurrentlyAvailable     = errors.New("currently available")
	ErrHoldsNotPermitted      = errors.New("holds not permitted")
	ErrHoldOnUnlimitedAccess  = errors.New("cannot place a hold on an unlimited access title")
	ErrPatronLoanLimitReached = errors.New("patron loan limit reached")
	ErrPatronHoldLimitReached = errors.New("patron hold limit reached")
	ErrNoAvailableCopies      = errors.New("no available copies")
	ErrNoLicenses             = errors.New("no licenses")
	ErrCannotFulfill          = errors.New("cannot fulfill loan")
	ErrCannotReturn           = errors.New("cannot return loan")
	ErrCannotLoan             = errors.New("cannot loan")
	ErrNotFound               = errors.New("not found")
	ErrPatron                 = errors.New("patron id is required")
)

// RemoteIntegrationError is a transient failure talking to the distributor:
// unexpected HTTP status, malformed status document, timeout.
type RemoteIntegrationError struct {
	URL     string
	Message string
	Err     error
}

func (e *RemoteIntegrationError) Error() string {
	return fmt.Sprintf("remote integration error: %s: %s", e.URL, e.Message)
}

func (e *RemoteIntegrationError) Unwrap() error {
	return e.Err
}

// NewRemoteIntegrationError wraps a distributor call failure.
func NewRemoteIntegrationError(url, message string, err error) *RemoteIntegrationError {
	return &RemoteIntegrationError{URL: url, Message: message, Err: err}
}

// IsRemoteIntegration reports whether err is a remote integration failure.
func IsRemoteIntegration(err error) bool {
	var rie *RemoteIntegrationError
	return errors.As(err, &rie)
}

type ValidationErrorResponse struct {
	Message string `json:"message"`
	Errors  struct {
		AdditionalProperties string `json:"additionalProperties"`
	} `json:"errors"`
}
