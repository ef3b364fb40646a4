// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"regexp"
	"sync"
)

// UnassignedID marks a service descriptor that has not been given an id by the registry yet.
const UnassignedID int64 = -1

// matchNothing stands in for a ServiceID that does not compile.
var matchNothing = regexp.MustCompile(`$^`)

// Service descriptor variant tags. These are persisted in every stored envelope,
// so they must never change once data has been written with them.
const (
	RegexServiceTag = "service/regex-match"
	ExactServiceTag = "service/exact-match"
)

// ServiceProperties holds the fields shared by every registered service variant.
type ServiceProperties struct {
	// ID is unique across the registry and immutable once assigned.
	ID int64 `json:"id"`

	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`

	// ServiceID is the pattern a client service URL is matched against.
	// How it is interpreted depends on the variant.
	ServiceID string `json:"serviceId" validate:"required"`

	Enabled           bool   `json:"enabled"`
	SSOEnabled        bool   `json:"ssoEnabled"`
	AllowedToProxy    bool   `json:"allowedToProxy"`
	EvaluationOrder   int    `json:"evaluationOrder" validate:"gte=0"`
	Theme             string `json:"theme"`
	UsernameAttribute string `json:"usernameAttribute"`
}

// Properties returns the shared fields so variants can expose them through RegisteredService.
func (p *ServiceProperties) Properties() *ServiceProperties {
	return p
}

// RegisteredService is one client application known to the SSO server.
type RegisteredService interface {
	// VariantTag identifies the concrete variant among the closed set.
	VariantTag() string

	Properties() *ServiceProperties

	// Matches reports whether the given service URL belongs to this descriptor.
	Matches(service string) bool
}

// RegexRegisteredService matches service URLs against ServiceID as a regular expression.
type RegexRegisteredService struct {
	ServiceProperties

	lock    sync.Mutex
	source  string
	pattern *regexp.Regexp
}

func NewRegexRegisteredService() *RegexRegisteredService {
	return &RegexRegisteredService{
		ServiceProperties: ServiceProperties{ID: UnassignedID},
	}
}

func (*RegexRegisteredService) VariantTag() string {
	return RegexServiceTag
}

// Matches compiles ServiceID on first use and again whenever it has changed.
// An invalid expression matches nothing.
func (r *RegexRegisteredService) Matches(service string) bool {
	r.lock.Lock()
	if r.pattern == nil || r.source != r.ServiceID {
		r.source = r.ServiceID
		r.pattern, _ = regexp.Compile(r.ServiceID)
		if r.pattern == nil {
			r.pattern = matchNothing
		}
	}
	pattern := r.pattern
	r.lock.Unlock()
	return pattern != matchNothing && pattern.MatchString(service)
}

// ExactRegisteredService matches service URLs that are equal to ServiceID.
type ExactRegisteredService struct {
	ServiceProperties
}

func NewExactRegisteredService() *ExactRegisteredService {
	return &ExactRegisteredService{
		ServiceProperties: ServiceProperties{ID: UnassignedID},
	}
}

func (*ExactRegisteredService) VariantTag() string {
	return ExactServiceTag
}

func (e *ExactRegisteredService) Matches(service string) bool {
	return e.ServiceID == service
}
