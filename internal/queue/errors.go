package queue

import "errors"

var (
	// ErrValidation indicates a malformed submission payload; no job was created
	ErrValidation = errors.New("invalid submission payload")

	// ErrInvalidTransition indicates an operation not permitted by the job's
	// current status; job state is unchanged
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrCancelRefused indicates cancellation was denied by the execution
	// mode policy; job state is unchanged
	ErrCancelRefused = errors.New("cancellation refused while job is processing in automatic mode")

	// ErrJobNotFound indicates the referenced job does not exist
	ErrJobNotFound = errors.New("job not found")
)
