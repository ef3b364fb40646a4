// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Map functions understood by every backend. A map function decides, per stored
// key, whether the key is emitted into the view.
const (
	MapEmitKey        = "emit(key)"
	MapEmitNumericKey = "emit(key) if isNumeric(key)"
)

// ReduceCount makes a reduced query return the number of matching rows.
const ReduceCount = "_count"

// View is a secondary index definition.
type View struct {
	Name   string `json:"name" cbor:"name"`
	Map    string `json:"map" cbor:"map"`
	Reduce string `json:"reduce,omitempty" cbor:"reduce,omitempty"`
}

// Equal compares the definitions structurally.
func (v View) Equal(o View) bool {
	return v.Name == o.Name && v.Map == o.Map && v.Reduce == o.Reduce
}

// DesignDocument groups views under one name.
type DesignDocument struct {
	Name  string `json:"name" cbor:"name"`
	Views []View `json:"views" cbor:"views"`
}

// View looks up a view by name.
func (d DesignDocument) View(name string) (View, bool) {
	for _, v := range d.Views {
		if v.Name == name {
			return v, true
		}
	}
	return View{}, false
}

// ViewQuery selects the rows of a view whose key lies in [StartKey, EndKey).
// An empty EndKey leaves the range unbounded above.
type ViewQuery struct {
	Document string
	View     string
	StartKey string
	EndKey   string

	// Reduce applies the view's reduce function. A reduced query over an empty
	// range returns no rows.
	Reduce bool

	// IncludeDocs fills ViewRow.Doc with the stored value.
	IncludeDocs bool
}

// InRange reports whether key falls in the query's half open range.
func (q ViewQuery) InRange(key string) bool {
	if key < q.StartKey {
		return false
	}
	return q.EndKey == "" || key < q.EndKey
}

// ViewRow is one emitted row. For reduced queries only Value is set.
type ViewRow struct {
	ID    string
	Key   string
	Value any
	Doc   []byte
}

type ViewResult struct {
	Rows []ViewRow
}

// Emitter is the compiled form of a map function.
type Emitter func(key string) bool

// CompiledView is a view ready to be evaluated by a backend.
type CompiledView struct {
	View
	Emit Emitter
}

// CompileView turns a view definition into an executable emitter.
func CompileView(v View) (CompiledView, error) {
	var emit Emitter
	switch v.Map {
	case MapEmitKey:
		emit = func(string) bool { return true }
	case MapEmitNumericKey:
		emit = isNumeric
	default:
		return CompiledView{}, fmt.Errorf("%w: map %q of view %q", ErrUnsupportedView, v.Map, v.Name)
	}
	switch v.Reduce {
	case "", ReduceCount:
	default:
		return CompiledView{}, fmt.Errorf("%w: reduce %q of view %q", ErrUnsupportedView, v.Reduce, v.Name)
	}
	return CompiledView{View: v, Emit: emit}, nil
}

// CompileDocument compiles every view in doc.
func CompileDocument(doc DesignDocument) (map[string]CompiledView, error) {
	views := make(map[string]CompiledView, len(doc.Views))
	for _, v := range doc.Views {
		cv, err := CompileView(v)
		if err != nil {
			return nil, err
		}
		views[v.Name] = cv
	}
	return views, nil
}

// Reduce builds the result of a query from the keys that matched it, sorted or not.
// Backends that index rows themselves share it for the reduce step.
func Reduce(q ViewQuery, v CompiledView, keys []string) (ViewResult, error) {
	if q.Reduce {
		if v.Reduce == "" {
			return ViewResult{}, fmt.Errorf("%w: view %q has no reduce function", ErrUnsupportedView, v.Name)
		}
		if len(keys) == 0 {
			return ViewResult{}, nil
		}
		return ViewResult{Rows: []ViewRow{{Value: int64(len(keys))}}}, nil
	}
	sort.Strings(keys)
	rows := make([]ViewRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, ViewRow{ID: k, Key: k})
	}
	return ViewResult{Rows: rows}, nil
}

func isNumeric(key string) bool {
	f, err := strconv.ParseFloat(key, 64)
	return err == nil && !math.IsNaN(f)
}
