package cli

import "errors"

var errExpectedOneArg = errors.New("expected exactly one argument")
