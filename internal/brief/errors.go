package brief

import "errors"

var (
	ErrSectionNotFound = errors.New("section not found")
	ErrSectionLocked   = errors.New("section is locked")
	ErrNotAllLocked    = errors.New("every section must be locked before approval")
	ErrAlreadyApproved = errors.New("brief is already approved")
	ErrCommentEmpty    = errors.New("comment text is required")
	ErrNoActiveSection = errors.New("no section selected for comment")
)
