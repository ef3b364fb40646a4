// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"errors"
	"fmt"
)

// Errors that can be returned by this package. Decode failures are returned as
// *DecodeError, use errors.Is(err, ErrDecode) to check for them.
var (
	ErrDecode         = errors.New("decode error")
	ErrUnknownVariant = errors.New("variant tag is not registered")
	ErrMissingTag     = errors.New("envelope has no type tag")
)

// Variant is implemented by every concrete record type the codec can carry.
type Variant interface {
	VariantTag() string
}

// DecodeError reports an envelope that could not be turned back into a record.
type DecodeError struct {
	Tag string
	Err error
}

func (e *DecodeError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("%s: %v", ErrDecode, e.Err)
	}
	return fmt.Sprintf("%s: type %q: %v", ErrDecode, e.Tag, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Codec encodes a closed set of variants of T into tagged envelopes and back.
// The tag to constructor mapping is maintained explicitly through Register.
type Codec[T Variant] struct {
	format   Format
	variants map[string]func() T
}

// New creates a codec that writes envelopes in the given format.
func New[T Variant](format Format) *Codec[T] {
	return &Codec[T]{
		format:   format,
		variants: make(map[string]func() T),
	}
}

// Register adds a variant constructor under tag. The constructor must return a
// fresh pointer each call. It panics if tag is already registered.
func (c *Codec[T]) Register(tag string, newVariant func() T) *Codec[T] {
	if _, exists := c.variants[tag]; exists {
		panic(fmt.Sprintf("codec: variant %q already registered", tag))
	}
	c.variants[tag] = newVariant
	return c
}

// Len returns the number of registered variants.
func (c *Codec[T]) Len() int {
	return len(c.variants)
}

// Encode wraps v in an envelope carrying its variant tag.
func (c *Codec[T]) Encode(v T) ([]byte, error) {
	tag := v.VariantTag()
	if _, ok := c.variants[tag]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, tag)
	}
	properties, err := c.format.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %q properties: %w", tag, err)
	}
	return c.format.Seal(tag, properties)
}

// Decode resolves the envelope's tag to a registered variant and decodes the
// properties into it.
func (c *Codec[T]) Decode(data []byte) (T, error) {
	var zero T
	tag, properties, err := c.format.Open(data)
	if err != nil {
		return zero, &DecodeError{Tag: tag, Err: err}
	}
	if tag == "" {
		return zero, &DecodeError{Err: ErrMissingTag}
	}
	newVariant, ok := c.variants[tag]
	if !ok {
		return zero, &DecodeError{Tag: tag, Err: ErrUnknownVariant}
	}
	v := newVariant()
	if err := c.format.Unmarshal(properties, v); err != nil {
		return zero, &DecodeError{Tag: tag, Err: err}
	}
	return v, nil
}
