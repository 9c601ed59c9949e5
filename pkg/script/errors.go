package script

import (
	"errors"
	"fmt"
)

// ErrUnknownHandle reports a handle that was never issued by the registry.
var ErrUnknownHandle = errors.New("unknown callback handle")

// Fault wraps an error raised while a script callback was running.
type Fault struct {
	Kind   Kind
	Handle Handle
	Err    error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s callback #%d: %v", f.Kind, f.Handle, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }
