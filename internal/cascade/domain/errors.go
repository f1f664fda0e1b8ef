package domain

import "errors"

var (
	ErrJobNotFound      = errors.New("cascade_job_not_found")
	ErrJobNotReplayable = errors.New("cascade_job_not_replayable")
	ErrInvalidJobID     = errors.New("invalid_cascade_job_id")
)
