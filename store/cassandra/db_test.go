// SPDX-FileCopyrightText: 2021 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cassandra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xmidt-org/cerberus/store"
	"github.com/xmidt-org/cerberus/store/storetest"
	"go.uber.org/zap"
)

func TestCassandra(t *testing.T) {
	storetest.StoreTest(newClient(newFakeDB(), Config{}, zap.NewNop()), 0, t)
}

func TestDialRequiresHosts(t *testing.T) {
	_, err := Dial(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestTTLSeconds(t *testing.T) {
	tcs := []struct {
		Description string
		TTL         time.Duration
		Expected    int
	}{
		{Description: "Never expires", TTL: 0, Expected: 0},
		{Description: "Negative", TTL: -time.Second, Expected: 0},
		{Description: "Sub second rounds up", TTL: 10 * time.Millisecond, Expected: 1},
		{Description: "Whole seconds", TTL: 28800 * time.Second, Expected: 28800},
	}
	for _, tc := range tcs {
		t.Run(tc.Description, func(t *testing.T) {
			assert.Equal(t, tc.Expected, ttlSeconds(tc.TTL))
		})
	}
}

func TestIncrementLostInsertRace(t *testing.T) {
	assert := assert.New(t)
	m := &mockDB{}
	m.On("GetCounter", "LAST_ID").Return(int64(0), noDataResponse).Once()
	m.On("InsertCounter", "LAST_ID", int64(3)).Return(false, nil).Once()
	m.On("GetCounter", "LAST_ID").Return(int64(7), nil).Once()
	m.On("SwapCounter", "LAST_ID", int64(7), int64(8)).Return(true, nil).Once()

	n, err := newClient(m, Config{}, zap.NewNop()).Increment(context.Background(), "LAST_ID", 1, 3)
	assert.NoError(err)
	assert.Equal(int64(8), n)
	m.AssertExpectations(t)
}

func TestIncrementContention(t *testing.T) {
	m := &mockDB{}
	m.On("GetCounter", "LAST_ID").Return(int64(5), nil)
	m.On("SwapCounter", "LAST_ID", int64(5), int64(6)).Return(false, nil)

	_, err := newClient(m, Config{}, zap.NewNop()).Increment(context.Background(), "LAST_ID", 1, 0)
	assert.True(t, errors.Is(err, errCounterContention))
	m.AssertNumberOfCalls(t, "SwapCounter", maxSwapAttempts)
}

func TestSetFailure(t *testing.T) {
	m := &mockDB{}
	m.On("PutItem", "TGT-1", []byte("a"), 60).Return(errors.New("write timeout"))

	err := newClient(m, Config{}, zap.NewNop()).Set(context.Background(), "TGT-1", []byte("a"), time.Minute)
	require.Error(t, err)
	assert.False(t, errors.Is(err, store.ErrKeyNotFound))
	m.AssertNotCalled(t, "AllDesigns")
}

func TestSetSkipsUndecodableDesign(t *testing.T) {
	m := &mockDB{}
	m.On("PutItem", "TGT-1", []byte("a"), 0).Return(nil)
	m.On("AllDesigns").Return(map[string][]byte{"broken": []byte("{")}, nil).Once()

	c := newClient(m, Config{}, zap.NewNop())
	assert.NoError(t, c.Set(context.Background(), "TGT-1", []byte("a"), 0))
	assert.NoError(t, c.Set(context.Background(), "TGT-1", []byte("a"), 0), "designs are only loaded once")
	m.AssertExpectations(t)
	m.AssertNotCalled(t, "PutViewRow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReduceWithoutReduceFunction(t *testing.T) {
	ctx := context.Background()
	c := newClient(newFakeDB(), Config{}, zap.NewNop())
	require.NoError(t, c.UpsertDesignDocument(ctx, storetest.StatisticsDocument))
	_, err := c.Query(ctx, store.ViewQuery{Document: storetest.StatisticsDocument.Name, View: "numeric", Reduce: true})
	assert.True(t, errors.Is(err, store.ErrUnsupportedView))
}

func TestPingFailure(t *testing.T) {
	m := &mockDB{}
	m.On("Ping").Return(serverClosed)
	err := newClient(m, Config{}, zap.NewNop()).Ping(context.Background())
	assert.True(t, errors.Is(err, serverClosed))
}
