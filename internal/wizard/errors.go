package wizard

import "errors"

var (
	ErrSelectionIncomplete     = errors.New("date and time must be selected")
	ErrQualificationIncomplete = errors.New("all qualification questions must be answered")
	ErrUnsavedChanges          = errors.New("unsaved changes, confirmation required")
	ErrUnknownField            = errors.New("unknown contact field")
	ErrUnknownQuestion         = errors.New("unknown qualification question")
	ErrInvalidAnswer           = errors.New("invalid answer")
	ErrDateNotBookable         = errors.New("date is not bookable")
	ErrWrongStep               = errors.New("action not allowed on current step")
	ErrClosed                  = errors.New("wizard is closed")
)
