// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package codec

import "github.com/xmidt-org/cerberus/model"

// NewServiceCodec returns the JSON codec for every registered service variant.
func NewServiceCodec() *Codec[model.RegisteredService] {
	return New[model.RegisteredService](JSON).
		Register(model.RegexServiceTag, func() model.RegisteredService { return &model.RegexRegisteredService{} }).
		Register(model.ExactServiceTag, func() model.RegisteredService { return &model.ExactRegisteredService{} })
}

// NewTicketCodec returns the CBOR codec for every ticket variant.
func NewTicketCodec() *Codec[model.Ticket] {
	return New[model.Ticket](CBOR).
		Register(model.TicketGrantingTicketTag, func() model.Ticket { return &model.TicketGrantingTicket{} }).
		Register(model.ServiceTicketTag, func() model.Ticket { return &model.ServiceTicket{} })
}
