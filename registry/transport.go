// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/xmidt-org/cerberus/codec"
	"github.com/xmidt-org/cerberus/model"
	"github.com/xmidt-org/cerberus/store"
	"github.com/xmidt-org/httpaux/erraux"
)

// request URL path keys
const (
	idVarKey = "id"
)

const (
	idVarMissingMsg = "{id} URL path parameter missing"
	idVarInvalidMsg = "{id} URL path parameter must be an integer"
)

// Response headers
const (
	XmidtErrorHeaderKey = "X-Midt-Error"
)

// ErrCasting indicates there was a middleware wiring mistake with the go-kit style
// encoders.
var ErrCasting = errors.New("casting error due to middleware wiring mistake")

type serviceIDRequest struct {
	id int64
}

type saveServiceRequest struct {
	service model.RegisteredService
}

type ticketStatsResponse struct {
	Sessions       int `json:"sessions"`
	ServiceTickets int `json:"serviceTickets"`
}

func decodeServiceIDRequest(_ context.Context, r *http.Request) (interface{}, error) {
	raw, ok := mux.Vars(r)[idVarKey]
	if !ok {
		return nil, &BadRequestErr{Message: idVarMissingMsg}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return nil, &BadRequestErr{Message: idVarInvalidMsg}
	}
	return &serviceIDRequest{id: id}, nil
}

func decodeNoRequest(context.Context, *http.Request) (interface{}, error) {
	return nil, nil
}

func saveServiceRequestDecoder(c *codec.Codec[model.RegisteredService], validate *validator.Validate) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (interface{}, error) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, &BadRequestErr{Message: "failed to read body"}
		}
		svc, err := c.Decode(data)
		if err != nil {
			return nil, &BadRequestErr{Message: err.Error()}
		}
		if err := validate.Struct(svc.Properties()); err != nil {
			return nil, &BadRequestErr{Message: err.Error()}
		}
		return &saveServiceRequest{service: svc}, nil
	}
}

func serviceResponseEncoder(c *codec.Codec[model.RegisteredService]) kithttp.EncodeResponseFunc {
	return func(_ context.Context, rw http.ResponseWriter, response interface{}) error {
		svc, ok := response.(model.RegisteredService)
		if !ok {
			return ErrCasting
		}
		data, err := c.Encode(svc)
		if err != nil {
			return err
		}
		rw.Header().Add("Content-Type", "application/json")
		_, err = rw.Write(data)
		return err
	}
}

func servicesResponseEncoder(c *codec.Codec[model.RegisteredService]) kithttp.EncodeResponseFunc {
	return func(_ context.Context, rw http.ResponseWriter, response interface{}) error {
		services, ok := response.([]model.RegisteredService)
		if !ok {
			return ErrCasting
		}
		list := make([]json.RawMessage, 0, len(services))
		for _, svc := range services {
			data, err := c.Encode(svc)
			if err != nil {
				return err
			}
			list = append(list, data)
		}
		return encodeJSON(rw, list)
	}
}

func encodeDeleteServiceResponse(_ context.Context, rw http.ResponseWriter, _ interface{}) error {
	rw.WriteHeader(http.StatusNoContent)
	return nil
}

func encodeTicketStatsResponse(_ context.Context, rw http.ResponseWriter, response interface{}) error {
	stats, ok := response.(*ticketStatsResponse)
	if !ok {
		return ErrCasting
	}
	return encodeJSON(rw, stats)
}

func encodeJSON(rw http.ResponseWriter, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	rw.Header().Add("Content-Type", "application/json")
	_, err = rw.Write(data)
	return err
}

// toHTTPError gives registry errors their status code.
func toHTTPError(err error) error {
	var coder kithttp.StatusCoder
	if errors.As(err, &coder) {
		return err
	}
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrServiceNotFound), errors.Is(err, ErrTicketNotFound):
		code = http.StatusNotFound
	case errors.Is(err, store.ErrNotInitialized):
		code = http.StatusServiceUnavailable
	}
	return &erraux.Error{Err: err, Code: code}
}

func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set(XmidtErrorHeaderKey, err.Error())
	err = toHTTPError(err)
	if headerer, ok := err.(kithttp.Headerer); ok {
		for k, values := range headerer.Headers() {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
	}
	code := http.StatusInternalServerError
	if sc, ok := err.(kithttp.StatusCoder); ok {
		code = sc.StatusCode()
	}
	w.WriteHeader(code)
}
