package cache

import "errors"

// ErrCacheMiss indicates the requested key was not found. This is expected
// behavior when a key hasn't been cached yet or has expired, not a failure.
var ErrCacheMiss = errors.New("cache miss")
