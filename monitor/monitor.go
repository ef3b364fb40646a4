// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"fmt"
	"strings"

	"github.com/xmidt-org/cerberus/store"
	"go.uber.org/zap"
)

// Code is the overall health of the store.
type Code string

const (
	OK    Code = "OK"
	WARN  Code = "WARN"
	ERROR Code = "ERROR"
)

// Status is the result of one observation.
type Status struct {
	Code        Code                   `json:"code"`
	Description string                 `json:"description,omitempty"`
	Nodes       []store.NodeStatistics `json:"nodes,omitempty"`
}

// Handler hands out the open bucket. *connection.Manager implements it.
type Handler interface {
	Handle() (store.Bucket, error)
}

// Monitor observes store availability independently of registry traffic.
type Monitor struct {
	handler Handler
	logger  *zap.Logger
}

func New(handler Handler, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{handler: handler, logger: logger}
}

// Observe pings the store and, when the bucket reports per node statistics,
// degrades to WARN if some nodes are unavailable and ERROR if all of them are.
func (m *Monitor) Observe(ctx context.Context) Status {
	b, err := m.handler.Handle()
	if err != nil {
		return Status{Code: ERROR, Description: "Store connection is not established."}
	}
	if err := b.Ping(ctx); err != nil {
		m.logger.Warn("store ping failed", zap.Error(err))
		return Status{Code: ERROR, Description: "Store did not answer the ping."}
	}

	reporter, ok := b.(store.StatsReporter)
	if !ok {
		return Status{Code: OK}
	}
	nodes, err := reporter.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read store statistics", zap.Error(err))
		return Status{Code: WARN, Description: "Store statistics are unavailable."}
	}

	var unavailable []string
	for _, node := range nodes {
		if !node.Available {
			unavailable = append(unavailable, node.Name)
		}
	}
	switch {
	case len(nodes) > 0 && len(unavailable) == len(nodes):
		return Status{Code: ERROR, Description: "No store nodes available.", Nodes: nodes}
	case len(unavailable) > 0:
		return Status{
			Code:        WARN,
			Description: fmt.Sprintf("One or more store nodes is unavailable: [%s]", strings.Join(unavailable, ", ")),
			Nodes:       nodes,
		}
	}
	return Status{Code: OK, Nodes: nodes}
}
