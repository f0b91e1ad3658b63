package apperrors

import "errors"

var (
	ErrSourceNotFound      = errors.New("source record not found")
	ErrEntityNotFound      = errors.New("entity not found")
	ErrLinkNotFound        = errors.New("link not found")
	ErrSuggestionNotFound  = errors.New("suggestion not found")
	ErrBelowThreshold      = errors.New("confidence below auto-commit threshold")
	ErrManualLink          = errors.New("manual link can only be superseded by a manual action")
	ErrSuggestionResolved  = errors.New("suggestion already resolved")
	ErrDuplicateSuggestion = errors.New("equivalent pending suggestion exists")
	ErrMissingActor        = errors.New("acting identity required")
	ErrMissingReason       = errors.New("reason required")
)
