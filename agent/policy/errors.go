package policy

import "errors"

var (
	ErrIndexNotBuilt = errors.New("policy index not built")
	ErrEmptyDocument = errors.New("policy document is empty")
)
