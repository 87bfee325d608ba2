package vfs

import "github.com/weberc2/easyfs/pkg/types"

// Name validation failures are reported as `types.ErrInvalidName` and
// `types.ErrNameTooLong`.
const (
	ErrExists        types.ConstError = "entry already exists"
	ErrNotFound      types.ConstError = "entry not found"
	ErrNotDir        types.ConstError = "not a directory"
	ErrIsDir         types.ConstError = "is a directory"
	ErrFileTooLarge  types.ConstError = "file too large"
	ErrInvalidOffset types.ConstError = "invalid offset"
)
