// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/cerberus/model"
)

type testServer struct {
	router   *mux.Router
	services *ServiceRegistry
	tickets  *TicketRegistry
}

func newTestServer(t *testing.T, conn *mockConnection) *testServer {
	services := newServiceRegistry(t, conn)
	tickets := newTicketRegistry(t, conn)
	router := mux.NewRouter()
	router.Handle("/services", newListServicesHandler(services)).Methods(http.MethodGet)
	router.Handle("/services", newSaveServiceHandler(services)).Methods(http.MethodPut)
	router.Handle("/services/{id}", newGetServiceHandler(services)).Methods(http.MethodGet)
	router.Handle("/services/{id}", newDeleteServiceHandler(services)).Methods(http.MethodDelete)
	router.Handle("/tickets/stats", newTicketStatsHandler(tickets)).Methods(http.MethodGet)
	return &testServer{router: router, services: services, tickets: tickets}
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	rw := httptest.NewRecorder()
	s.router.ServeHTTP(rw, r)
	return rw
}

const exactServiceBody = `{"type":"service/exact-match","properties":{"id":-1,"name":"app","serviceId":"https://app","enabled":true,"evaluationOrder":1}}`

func TestSaveAndGetServiceHandlers(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	s := newTestServer(t, connected(newIndexedBucket(t)))

	rw := s.do(http.MethodPut, "/services", exactServiceBody)
	require.Equal(http.StatusOK, rw.Code)
	assert.Equal("application/json", rw.Header().Get("Content-Type"))

	var envelope struct {
		Type       string                  `json:"type"`
		Properties model.ServiceProperties `json:"properties"`
	}
	require.NoError(json.Unmarshal(rw.Body.Bytes(), &envelope))
	assert.Equal(model.ExactServiceTag, envelope.Type)
	assert.Equal(int64(0), envelope.Properties.ID)
	assert.Equal("app", envelope.Properties.Name)

	rw = s.do(http.MethodGet, "/services/0", "")
	require.Equal(http.StatusOK, rw.Code)
	require.NoError(json.Unmarshal(rw.Body.Bytes(), &envelope))
	assert.Equal("https://app", envelope.Properties.ServiceID)

	rw = s.do(http.MethodGet, "/services", "")
	require.Equal(http.StatusOK, rw.Code)
	var list []json.RawMessage
	require.NoError(json.Unmarshal(rw.Body.Bytes(), &list))
	assert.Len(list, 1)

	rw = s.do(http.MethodDelete, "/services/0", "")
	assert.Equal(http.StatusNoContent, rw.Code)
	rw = s.do(http.MethodGet, "/services/0", "")
	assert.Equal(http.StatusNotFound, rw.Code)
	assert.Equal(ErrServiceNotFound.Error(), rw.Header().Get(XmidtErrorHeaderKey))
}

func TestServiceHandlerErrors(t *testing.T) {
	s := newTestServer(t, connected(newIndexedBucket(t)))
	offline := newTestServer(t, notConnected())

	tcs := []struct {
		Description  string
		Server       *testServer
		Method       string
		Target       string
		Body         string
		ExpectedCode int
	}{
		{Description: "Id is not a number", Server: s, Method: http.MethodGet, Target: "/services/abc", ExpectedCode: http.StatusBadRequest},
		{Description: "Negative id", Server: s, Method: http.MethodGet, Target: "/services/-1", ExpectedCode: http.StatusBadRequest},
		{Description: "Missing service", Server: s, Method: http.MethodGet, Target: "/services/9", ExpectedCode: http.StatusNotFound},
		{Description: "Delete missing service", Server: s, Method: http.MethodDelete, Target: "/services/9", ExpectedCode: http.StatusNotFound},
		{Description: "Body is not an envelope", Server: s, Method: http.MethodPut, Target: "/services", Body: "{", ExpectedCode: http.StatusBadRequest},
		{Description: "Unknown variant", Server: s, Method: http.MethodPut, Target: "/services", Body: `{"type":"service/other","properties":{}}`, ExpectedCode: http.StatusBadRequest},
		{
			Description:  "Missing name",
			Server:       s,
			Method:       http.MethodPut,
			Target:       "/services",
			Body:         `{"type":"service/exact-match","properties":{"id":-1,"serviceId":"https://app"}}`,
			ExpectedCode: http.StatusBadRequest,
		},
		{Description: "List before connecting", Server: offline, Method: http.MethodGet, Target: "/services", ExpectedCode: http.StatusServiceUnavailable},
		{Description: "Save before connecting", Server: offline, Method: http.MethodPut, Target: "/services", Body: exactServiceBody, ExpectedCode: http.StatusServiceUnavailable},
		{Description: "Stats before connecting", Server: offline, Method: http.MethodGet, Target: "/tickets/stats", ExpectedCode: http.StatusServiceUnavailable},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			rw := tc.Server.do(tc.Method, tc.Target, tc.Body)
			assert.Equal(t, tc.ExpectedCode, rw.Code)
			assert.NotEmpty(t, rw.Header().Get(XmidtErrorHeaderKey))
		})
	}
}

func TestTicketStatsHandler(t *testing.T) {
	require := require.New(t)
	s := newTestServer(t, connected(newIndexedBucket(t)))
	ctx := context.Background()
	require.NoError(s.tickets.AddTicket(ctx, &model.TicketGrantingTicket{ID: "TGT-1"}))
	require.NoError(s.tickets.AddTicket(ctx, &model.ServiceTicket{ID: "ST-1"}))
	require.NoError(s.tickets.AddTicket(ctx, &model.ServiceTicket{ID: "ST-2"}))

	rw := s.do(http.MethodGet, "/tickets/stats", "")
	require.Equal(http.StatusOK, rw.Code)
	assert.JSONEq(t, `{"sessions":1,"serviceTickets":2}`, rw.Body.String())
}

func TestToHTTPError(t *testing.T) {
	tcs := []struct {
		Description  string
		Err          error
		ExpectedCode int
	}{
		{Description: "Not found", Err: ErrServiceNotFound, ExpectedCode: http.StatusNotFound},
		{Description: "Not initialized", Err: ErrNotInitialized, ExpectedCode: http.StatusServiceUnavailable},
		{Description: "Bad request", Err: &BadRequestErr{Message: "nope"}, ExpectedCode: http.StatusBadRequest},
		{Description: "Anything else", Err: ErrSaveFailed, ExpectedCode: http.StatusInternalServerError},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			rw := httptest.NewRecorder()
			encodeError(context.Background(), tc.Err, rw)
			assert.Equal(t, tc.ExpectedCode, rw.Code)
			assert.Equal(t, tc.Err.Error(), rw.Header().Get(XmidtErrorHeaderKey))
		})
	}
}
