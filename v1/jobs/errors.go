package jobs

import "errors"

// ErrAborted is raised when a run notices its stop flag.
var ErrAborted = errors.New("Algorithm was aborted!")

// runError carries the message a failed run reports to its watchers.
type runError struct {
	msg string
	err error
}

func failure(msg string, err error) error {
	return &runError{msg: msg, err: err}
}

func (e *runError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *runError) Unwrap() error { return e.err }

// reportedMessage is what watchers see for err.
func reportedMessage(err error) string {
	var re *runError
	if errors.As(err, &re) {
		return re.msg
	}
	return err.Error()
}
