// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package store

import "sync"

// ViewRef names one view of one design document.
type ViewRef struct {
	Document string
	View     string
}

// DesignCache holds the compiled design documents of a backend that maintains
// view rows itself. The zero value is empty and not loaded.
type DesignCache struct {
	lock  sync.RWMutex
	docs  map[string]DesignDocument
	views map[string]map[string]CompiledView
}

// Loaded reports whether Fill has been called.
func (c *DesignCache) Loaded() bool {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.docs != nil
}

// Fill loads docs unless the cache was loaded already. Documents that do not
// compile are left out and returned so the caller can report them.
func (c *DesignCache) Fill(docs []DesignDocument) (rejected map[string]error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.docs != nil {
		return nil
	}
	c.docs = make(map[string]DesignDocument, len(docs))
	c.views = make(map[string]map[string]CompiledView, len(docs))
	for _, doc := range docs {
		compiled, err := CompileDocument(doc)
		if err != nil {
			if rejected == nil {
				rejected = map[string]error{}
			}
			rejected[doc.Name] = err
			continue
		}
		c.docs[doc.Name] = doc
		c.views[doc.Name] = compiled
	}
	return rejected
}

// Put replaces one document.
func (c *DesignCache) Put(doc DesignDocument, compiled map[string]CompiledView) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.docs == nil {
		c.docs = map[string]DesignDocument{}
		c.views = map[string]map[string]CompiledView{}
	}
	c.docs[doc.Name] = doc
	c.views[doc.Name] = compiled
}

// Document returns the cached document.
func (c *DesignCache) Document(name string) (DesignDocument, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	doc, ok := c.docs[name]
	return doc, ok
}

// View returns the compiled view or an OperationError wrapping
// ErrDesignDocumentNotFound or ErrViewNotFound.
func (c *DesignCache) View(document, view string) (CompiledView, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	views, ok := c.views[document]
	if !ok {
		return CompiledView{}, OperationError{Operation: "query", Key: document, Err: ErrDesignDocumentNotFound}
	}
	cv, ok := views[view]
	if !ok {
		return CompiledView{}, OperationError{Operation: "query", Key: document + "/" + view, Err: ErrViewNotFound}
	}
	return cv, nil
}

// Emitting lists every cached view that emits key.
func (c *DesignCache) Emitting(key string) []ViewRef {
	c.lock.RLock()
	defer c.lock.RUnlock()
	var refs []ViewRef
	for document, views := range c.views {
		for name, cv := range views {
			if cv.Emit(key) {
				refs = append(refs, ViewRef{Document: document, View: name})
			}
		}
	}
	return refs
}
