package core

import "errors"

var (
	// ErrEngineUninitialized is reported for module calls made before
	// create_app, and for run() before a successful listen().
	ErrEngineUninitialized = errors.New("engine uninitialized")
	// ErrAlreadyRunning rejects setup calls once run() has started.
	ErrAlreadyRunning = errors.New("application already running")
)
