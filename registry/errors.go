// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"errors"
	"net/http"

	"github.com/xmidt-org/cerberus/store"
)

// Errors returned by the registries. Store failures never leak their backend
// type; they are either swallowed or wrapped behind one of these.
var (
	ErrNotInitialized    = store.ErrNotInitialized
	ErrServiceNotFound   = errors.New("service not found")
	ErrSaveFailed        = errors.New("failed to save service")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrInvalidTicketType = errors.New("invalid ticket type")
	ErrUnsupported       = errors.New("operation not supported by the ticket registry")
	ErrInvalidStaticID   = errors.New("invalid static service id")
)

// BadRequestErr is returned by request decoders for malformed input.
type BadRequestErr struct {
	Message string
}

func (bre BadRequestErr) Error() string {
	return bre.Message
}

func (bre BadRequestErr) StatusCode() int {
	return http.StatusBadRequest
}
