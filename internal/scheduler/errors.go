package scheduler

import "errors"

// ErrTaskNotFound is returned when no task exists for a key.
var ErrTaskNotFound = errors.New("task not found")

// ErrMisfired is passed to Abandon when a task is dropped because it is
// older than the misfire grace window.
var ErrMisfired = errors.New("task missed its misfire grace window")
