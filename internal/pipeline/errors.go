package pipeline

import "errors"

// ErrExecutorFailed names the executor-raised failure kind. Run does not
// return it: a notebook whose executor raised is listed in Result.Errored.
var ErrExecutorFailed = errors.New("pipeline: executor failed")
