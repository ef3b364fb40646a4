// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package model

import "time"

// Ticket id prefixes. Range queries over the ticket index rely on them.
const (
	TicketGrantingTicketPrefix = "TGT-"
	ServiceTicketPrefix        = "ST-"
)

// Ticket variant tags.
const (
	TicketGrantingTicketTag = "ticket/granting"
	ServiceTicketTag        = "ticket/service"
)

// Ticket is a short-lived credential persisted by the ticket registry.
type Ticket interface {
	GetID() string
	VariantTag() string
	CreatedAt() time.Time
}

// TicketGrantingTicket represents an SSO session.
type TicketGrantingTicket struct {
	ID         string              `json:"id" cbor:"id"`
	Principal  string              `json:"principal" cbor:"principal"`
	Attributes map[string][]string `json:"attributes,omitempty" cbor:"attributes,omitempty"`
	Created    time.Time           `json:"created" cbor:"created"`
	LastUsed   time.Time           `json:"lastUsed" cbor:"lastUsed"`
	UsageCount int                 `json:"usageCount" cbor:"usageCount"`
	Expired    bool                `json:"expired" cbor:"expired"`

	// Services maps the ids of granted service tickets to their service URL.
	Services map[string]string `json:"services,omitempty" cbor:"services,omitempty"`
}

func (t *TicketGrantingTicket) GetID() string { return t.ID }
func (*TicketGrantingTicket) VariantTag() string { return TicketGrantingTicketTag }
func (t *TicketGrantingTicket) CreatedAt() time.Time { return t.Created }

// ServiceTicket is a one-time credential granted to a service under a session.
type ServiceTicket struct {
	ID               string    `json:"id" cbor:"id"`
	Service          string    `json:"service" cbor:"service"`
	GrantingTicketID string    `json:"grantingTicketId" cbor:"grantingTicketId"`
	Created          time.Time `json:"created" cbor:"created"`
	FromNewLogin     bool      `json:"fromNewLogin" cbor:"fromNewLogin"`
	UsageCount       int       `json:"usageCount" cbor:"usageCount"`
}

func (t *ServiceTicket) GetID() string { return t.ID }
func (*ServiceTicket) VariantTag() string { return ServiceTicketTag }
func (t *ServiceTicket) CreatedAt() time.Time { return t.Created }
