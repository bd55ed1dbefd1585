package storage

import "errors"

var (
	// ErrProviderNotFound is returned when a provider is not found
	ErrProviderNotFound = errors.New("provider not found")

	// ErrManagedModelNotFound is returned when a managed model is not found
	ErrManagedModelNotFound = errors.New("managed model not found")

	// ErrUsageRecordNotFound is returned when a usage record is not found
	ErrUsageRecordNotFound = errors.New("usage record not found")

	// ErrSnapshotNotFound is returned when no provider snapshot is mirrored
	ErrSnapshotNotFound = errors.New("provider snapshot not found")
)
