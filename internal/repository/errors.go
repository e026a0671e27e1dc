package repository

import "errors"

// ErrNoUnusedMedia is returned when a theme has no asset left to claim.
var ErrNoUnusedMedia = errors.New("no unused media available")
