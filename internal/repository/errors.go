package repository

import "errors"

// ErrClaimConflict is returned when queue entries were no longer searching at
// claim time, meaning another pass already matched at least one of them.
var ErrClaimConflict = errors.New("queue entries already claimed")
