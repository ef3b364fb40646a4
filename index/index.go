// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cast"
	"github.com/xmidt-org/cerberus/store"
)

// Declared design documents and views.
const (
	UtilsDocument      = "utils"
	AllServicesView    = "all_services"
	StatisticsDocument = "statistics"
	AllTicketsView     = "all_tickets"
)

// Utils indexes every service descriptor. Descriptors are stored under their
// numeric id, so numeric keys select them.
var Utils = store.DesignDocument{
	Name: UtilsDocument,
	Views: []store.View{
		{Name: AllServicesView, Map: store.MapEmitNumericKey},
	},
}

// Statistics counts tickets by key range.
var Statistics = store.DesignDocument{
	Name: StatisticsDocument,
	Views: []store.View{
		{Name: AllTicketsView, Map: store.MapEmitKey, Reduce: store.ReduceCount},
	},
}

// prefixEnd sorts after every key starting with a given prefix.
const prefixEnd = "\ufffe"

// PrefixRange returns the half open range holding every key that starts with prefix.
func PrefixRange(prefix string) (start, end string) {
	return prefix, prefix + prefixEnd
}

// Merge returns existing with every desired view added or replaced. Views of
// existing that desired does not name are kept. changed is false when existing
// already holds every desired view unchanged.
func Merge(existing, desired store.DesignDocument) (merged store.DesignDocument, changed bool) {
	merged = store.DesignDocument{
		Name:  desired.Name,
		Views: append([]store.View(nil), existing.Views...),
	}
	for _, want := range desired.Views {
		found := false
		for i, have := range merged.Views {
			if have.Name != want.Name {
				continue
			}
			found = true
			if !have.Equal(want) {
				merged.Views[i] = want
				changed = true
			}
			break
		}
		if !found {
			merged.Views = append(merged.Views, want)
			changed = true
		}
	}
	return merged, changed
}

// Ensure makes the design document hold every view of doc. The document is
// written at most once and only if something differs.
func Ensure(ctx context.Context, dm store.DesignManager, doc store.DesignDocument) (bool, error) {
	existing, err := dm.GetDesignDocument(ctx, doc.Name)
	switch {
	case errors.Is(err, store.ErrDesignDocumentNotFound):
		if err := dm.UpsertDesignDocument(ctx, doc); err != nil {
			return false, fmt.Errorf("creating design document %q: %w", doc.Name, err)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("reading design document %q: %w", doc.Name, err)
	}

	merged, changed := Merge(existing, doc)
	if !changed {
		return false, nil
	}
	if err := dm.UpsertDesignDocument(ctx, merged); err != nil {
		return false, fmt.Errorf("updating design document %q: %w", doc.Name, err)
	}
	return true, nil
}

// Count runs the reduce function of a view over [start, end). An empty range
// counts zero, a missing view is an error.
func Count(ctx context.Context, s store.S, document, view, start, end string) (int, error) {
	result, err := s.Query(ctx, store.ViewQuery{
		Document: document,
		View:     view,
		StartKey: start,
		EndKey:   end,
		Reduce:   true,
	})
	if err != nil {
		return 0, err
	}
	if len(result.Rows) == 0 {
		return 0, nil
	}
	n, err := cast.ToInt64E(result.Rows[0].Value)
	if err != nil {
		return 0, fmt.Errorf("reduce value of %s/%s: %w", document, view, err)
	}
	return int(n), nil
}

// CountPrefix counts the keys of a view starting with prefix.
func CountPrefix(ctx context.Context, s store.S, document, view, prefix string) (int, error) {
	start, end := PrefixRange(prefix)
	return Count(ctx, s, document, view, start, end)
}

// Keys lists the keys a view emits in [start, end), in key order.
func Keys(ctx context.Context, s store.S, document, view, start, end string) ([]string, error) {
	result, err := s.Query(ctx, store.ViewQuery{
		Document: document,
		View:     view,
		StartKey: start,
		EndKey:   end,
	})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		keys = append(keys, row.Key)
	}
	return keys, nil
}
