// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/json"
	"errors"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Envelope field names.
const (
	typeField       = "type"
	propertiesField = "properties"
)

var errNoProperties = errors.New("envelope has no properties")

// Format is the byte representation of envelopes and their properties.
type Format interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error

	// Seal builds an envelope around already encoded properties.
	Seal(tag string, properties []byte) ([]byte, error)

	// Open splits an envelope into its tag and encoded properties.
	Open(data []byte) (tag string, properties []byte, err error)
}

type jsonEnvelope struct {
	Type       string          `json:"type"`
	Properties json.RawMessage `json:"properties"`
}

type jsonFormat struct{}

// JSON writes envelopes as {"type": ..., "properties": {...}} JSON objects.
var JSON Format = jsonFormat{}

func (jsonFormat) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonFormat) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (jsonFormat) Seal(tag string, properties []byte) ([]byte, error) {
	return json.Marshal(jsonEnvelope{Type: tag, Properties: properties})
}

func (jsonFormat) Open(data []byte) (string, []byte, error) {
	var e jsonEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return "", nil, err
	}
	if len(e.Properties) == 0 || string(e.Properties) == "null" {
		return e.Type, nil, errNoProperties
	}
	return e.Type, e.Properties, nil
}

type cborEnvelope struct {
	Type       string          `cbor:"type"`
	Properties cbor.RawMessage `cbor:"properties"`
}

type cborFormat struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR writes envelopes with Core Deterministic Encoding so the same record
// always produces the same bytes.
var CBOR Format = newCBORFormat()

func newCBORFormat() cborFormat {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	enc, err := encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
	return cborFormat{enc: enc, dec: dec}
}

func (f cborFormat) Marshal(v any) ([]byte, error) {
	return f.enc.Marshal(v)
}

func (f cborFormat) Unmarshal(data []byte, v any) error {
	return f.dec.Unmarshal(data, v)
}

func (f cborFormat) Seal(tag string, properties []byte) ([]byte, error) {
	return f.enc.Marshal(cborEnvelope{Type: tag, Properties: properties})
}

func (f cborFormat) Open(data []byte) (string, []byte, error) {
	var e cborEnvelope
	if err := f.dec.Unmarshal(data, &e); err != nil {
		return "", nil, err
	}
	if len(e.Properties) == 0 {
		return e.Type, nil, errNoProperties
	}
	return e.Type, e.Properties, nil
}
