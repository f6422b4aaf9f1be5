package scheduling

import "errors"

var (
	ErrNoFile       = errors.New("no file uploaded")
	ErrMissingField = errors.New("missing required field")
	ErrBadTime      = errors.New("unparseable schedule time")
)
