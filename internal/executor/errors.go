package executor

import "errors"

var ErrShutdown = errors.New("executor shut down")
