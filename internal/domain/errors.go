package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrJobFinished is returned when a redelivered job already reached a terminal stage
	ErrJobFinished = errors.New("job already finished")

	// ErrJobActive is returned when deleting a job that has not reached a terminal stage
	ErrJobActive = errors.New("job is still active")

	// ErrJobCanceled is returned when the requester canceled the job between stages
	ErrJobCanceled = errors.New("job canceled by requester")

	// ErrInvalidMessage is returned when a queue message cannot be turned into a job
	ErrInvalidMessage = errors.New("invalid job message")

	// ErrWorkspaceBusy is returned when another runner on this host owns the job workspace
	ErrWorkspaceBusy = errors.New("workspace is owned by another runner")

	ErrRetrievalFailed = errors.New("retrieval failed")
	ErrTransformFailed = errors.New("transform failed")
	ErrDeliveryFailed  = errors.New("delivery failed")

	// ErrReportingFailed and ErrCleanupFailed are only ever logged
	ErrReportingFailed = errors.New("status report failed")
	ErrCleanupFailed   = errors.New("workspace cleanup failed")
)

// StageError wraps a stage fault with its taxonomy kind
type StageError struct {
	Kind error
	Err  error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches the taxonomy kind as well as the wrapped chain
func (e *StageError) Is(target error) bool {
	return target == e.Kind
}

// RetrievalFailed wraps an extractor fault
func RetrievalFailed(err error) error {
	return &StageError{Kind: ErrRetrievalFailed, Err: err}
}

// TransformFailed wraps a post-processing fault
func TransformFailed(err error) error {
	return &StageError{Kind: ErrTransformFailed, Err: err}
}

// DeliveryFailed wraps a messaging transport fault
func DeliveryFailed(err error) error {
	return &StageError{Kind: ErrDeliveryFailed, Err: err}
}
