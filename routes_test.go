// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/cerberus/monitor"
	"github.com/xmidt-org/cerberus/store"
	"github.com/xmidt-org/cerberus/store/inmem"
	"github.com/xmidt-org/touchstone"
	"github.com/xmidt-org/touchstone/touchhttp"
	"go.uber.org/zap"
)

type testHandler struct {
	bucket store.Bucket
}

func (h testHandler) Handle() (store.Bucket, error) {
	if h.bucket == nil {
		return nil, store.ErrNotInitialized
	}
	return h.bucket, nil
}

func TestHealthHandler(t *testing.T) {
	closed := inmem.NewInMem()
	require.NoError(t, closed.Close())

	tcs := []struct {
		Description  string
		Bucket       store.Bucket
		ExpectedCode int
		ExpectedBody monitor.Code
	}{
		{Description: "Connected", Bucket: inmem.NewInMem(), ExpectedCode: http.StatusOK, ExpectedBody: monitor.OK},
		{Description: "Not connected", ExpectedCode: http.StatusServiceUnavailable, ExpectedBody: monitor.ERROR},
		{Description: "Closed bucket", Bucket: closed, ExpectedCode: http.StatusServiceUnavailable, ExpectedBody: monitor.ERROR},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			h := healthHandler(monitor.New(testHandler{bucket: tc.Bucket}, nil))
			rw := httptest.NewRecorder()
			h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, healthPath, nil).WithContext(context.Background()))

			assert.Equal(t, tc.ExpectedCode, rw.Code)
			var status monitor.Status
			require.NoError(t, json.Unmarshal(rw.Body.Bytes(), &status))
			assert.Equal(t, tc.ExpectedBody, status.Code)
		})
	}
}

func requestCount(t *testing.T, g prometheus.Gatherer, code, method string) float64 {
	families, err := g.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != touchhttp.DefaultServerCount {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels[touchhttp.CodeLabel] == code && labels[touchhttp.MethodLabel] == method && labels[touchhttp.ServerLabel] == "primary" {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestPrimaryInstrumenter(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	factory := touchstone.NewFactory(touchstone.Config{}, zap.NewNop(), reg)
	instrumenter, err := touchhttp.ServerBundle{}.NewInstrumenter(touchhttp.ServerLabel, "primary")(factory)
	require.NoError(t, err)

	h := instrumenter.Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	for _, method := range []string{http.MethodGet, http.MethodGet, http.MethodDelete} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, "/", nil))
	}

	assert.Equal(t, 2.0, requestCount(t, reg, "200", http.MethodGet))
	assert.Equal(t, 1.0, requestCount(t, reg, "404", http.MethodDelete))
}
