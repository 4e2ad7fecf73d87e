package annotation

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalid is the parent of every input validation error.
	ErrInvalid        = errors.New("invalid input")
	ErrEmptyComment   = fmt.Errorf("%w: comment text is empty", ErrInvalid)
	ErrEmptyTagName   = fmt.Errorf("%w: tag name is empty", ErrInvalid)
	ErrTagNameTooLong = fmt.Errorf("%w: tag name longer than %d characters", ErrInvalid, MaxTagNameLength)
	ErrDuplicateTag   = fmt.Errorf("%w: tag name already exists", ErrInvalid)
	ErrInvalidColor   = fmt.Errorf("%w: color must be #rrggbb", ErrInvalid)
	ErrEmptyImage     = fmt.Errorf("%w: image is empty", ErrInvalid)
	ErrInvalidJobID   = fmt.Errorf("%w: job id", ErrInvalid)

	// ErrForbidden means the acting role may not perform the operation.
	ErrForbidden = errors.New("permission denied")

	// ErrNotFound is the parent of lookups that miss.
	ErrNotFound           = errors.New("not found")
	ErrScreenshotNotFound = fmt.Errorf("screenshot %w", ErrNotFound)
	ErrTagNotFound        = fmt.Errorf("tag %w", ErrNotFound)
)
