// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"errors"
	"fmt"
)

// Errors that can be returned by store implementations. Most of them are returned
// wrapped in an OperationError so errors.Is() should be used to check for them.
var (
	ErrKeyNotFound            = errors.New("key not found")
	ErrDesignDocumentNotFound = errors.New("design document not found")
	ErrViewNotFound           = errors.New("view not found")
	ErrUnsupportedView        = errors.New("view definition is not supported")
	ErrNotInitialized         = errors.New("connection to store not initialized yet")
	ErrStoreUnavailable       = errors.New("store operation failed")
	ErrClosed                 = errors.New("bucket is closed")
)

// OperationError gives context to a failed bucket operation.
type OperationError struct {
	Operation string
	Key       string
	Err       error
}

func (e OperationError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s %q failed: %v", e.Operation, e.Key, e.Err)
}

func (e OperationError) Unwrap() error {
	return e.Err
}

// SanitizedError keeps the backend error for logging while only exposing
// one of this package's sentinels through errors.Is.
type SanitizedError struct {
	Err       error
	Sentinel  error
	Operation string
	Key       string
}

func (e SanitizedError) Error() string {
	return OperationError{Operation: e.Operation, Key: e.Key, Err: e.Err}.Error()
}

// Unwrap returns the sentinel so that backend error types do not leak past the store.
func (e SanitizedError) Unwrap() error {
	return e.Sentinel
}

// Cause returns the original backend error.
func (e SanitizedError) Cause() error {
	return e.Err
}

// SanitizeError wraps err so callers only see store sentinels. Errors already
// carrying one of the sentinels keep it, anything else becomes ErrStoreUnavailable.
func SanitizeError(operation, key string, err error) error {
	if err == nil {
		return nil
	}
	var s SanitizedError
	if errors.As(err, &s) {
		return err
	}
	for _, sentinel := range []error{
		ErrKeyNotFound, ErrDesignDocumentNotFound, ErrViewNotFound,
		ErrUnsupportedView, ErrNotInitialized, ErrClosed,
	} {
		if errors.Is(err, sentinel) {
			return SanitizedError{Err: err, Sentinel: sentinel, Operation: operation, Key: key}
		}
	}
	return SanitizedError{Err: err, Sentinel: ErrStoreUnavailable, Operation: operation, Key: key}
}
