package ncf

import "errors"

var (
	ErrInvalidMagic      = errors.New("ncf: invalid magic")
	ErrUnsupportedMajor  = errors.New("ncf: unsupported major version")
	ErrCorruptFile       = errors.New("ncf: corrupt file")
	ErrSectionNotFound    = errors.New("ncf: section not found")
	ErrDuplicateSection   = errors.New("ncf: duplicate section type")
)
