package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/nimeshabuddhika/resilient-order-saga/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// customerServer answers c1 with 200, missing with 404 and anything else with 500.
func customerServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch strings.TrimPrefix(r.URL.Path, "/customers/") {
		case "c1":
			_, _ = w.Write([]byte(`{"id":"c1"}`))
		case "missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newCustomerValidator(srv *httptest.Server, cache EntityValidatorConfig) EntityValidator {
	cache.Logger = zap.NewNop()
	if cache.HTTPClient == nil {
		cache.HTTPClient = srv.Client()
	}
	cache.BaseURL = srv.URL + "/"
	cache.Resource = "customers"
	return NewEntityValidator(cache)
}

func TestEntityValidator_NoCache(t *testing.T) {
	var hits atomic.Int32
	v := newCustomerValidator(customerServer(t, &hits), EntityValidatorConfig{})

	require.NoError(t, v.Exists(context.Background(), "c1"))

	err := v.Exists(context.Background(), "missing")
	assert.ErrorIs(t, err, pkg.ErrEntityNotFound)

	err = v.Exists(context.Background(), "broken")
	assert.ErrorIs(t, err, pkg.ErrUnexpectedStatus)
	assert.False(t, errors.Is(err, pkg.ErrEntityNotFound))
	assert.EqualValues(t, 3, hits.Load())
}

func TestEntityValidator_CacheMissStoresPositiveResult(t *testing.T) {
	var hits atomic.Int32
	db, mock := redismock.NewClientMock()
	v := newCustomerValidator(customerServer(t, &hits), EntityValidatorConfig{Cache: db, CacheTTL: time.Minute})

	mock.ExpectGet("order_saga:entity:customers:c1").RedisNil()
	mock.ExpectSet("order_saga:entity:customers:c1", "1", time.Minute).SetVal("OK")

	require.NoError(t, v.Exists(context.Background(), "c1"))
	assert.EqualValues(t, 1, hits.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityValidator_CacheHitSkipsDownstream(t *testing.T) {
	var hits atomic.Int32
	db, mock := redismock.NewClientMock()
	v := newCustomerValidator(customerServer(t, &hits), EntityValidatorConfig{Cache: db, CacheTTL: time.Minute})

	mock.ExpectGet("order_saga:entity:customers:c1").SetVal("1")

	require.NoError(t, v.Exists(context.Background(), "c1"))
	assert.Zero(t, hits.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityValidator_NotFoundIsNotCached(t *testing.T) {
	var hits atomic.Int32
	db, mock := redismock.NewClientMock()
	v := newCustomerValidator(customerServer(t, &hits), EntityValidatorConfig{Cache: db, CacheTTL: time.Minute})

	mock.ExpectGet("order_saga:entity:customers:missing").RedisNil()

	err := v.Exists(context.Background(), "missing")
	assert.ErrorIs(t, err, pkg.ErrEntityNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityValidator_CacheErrorFallsBackToDownstream(t *testing.T) {
	var hits atomic.Int32
	db, mock := redismock.NewClientMock()
	v := newCustomerValidator(customerServer(t, &hits), EntityValidatorConfig{Cache: db, CacheTTL: time.Minute})

	mock.ExpectGet("order_saga:entity:customers:c1").SetErr(errors.New("connection refused"))
	mock.ExpectSet("order_saga:entity:customers:c1", "1", time.Minute).SetErr(errors.New("connection refused"))

	require.NoError(t, v.Exists(context.Background(), "c1"))
	assert.EqualValues(t, 1, hits.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityValidator_PropagatesTraceID(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get(pkg.HeaderTraceId)
	}))
	t.Cleanup(srv.Close)
	v := newCustomerValidator(srv, EntityValidatorConfig{HTTPClient: utils.NewHTTPClient()})

	ctx := utils.WithTraceID(context.Background(), "trace-123")
	require.NoError(t, v.Exists(ctx, "c1"))
	assert.Equal(t, "trace-123", <-got)
}

func TestEntityValidator_ConcurrentLookupsShareOneCall(t *testing.T) {
	var hits atomic.Int32
	arrived := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case arrived <- struct{}{}:
		default:
		}
		<-release
	}))
	t.Cleanup(srv.Close)
	v := newCustomerValidator(srv, EntityValidatorConfig{})

	const callers = 5
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- v.Exists(context.Background(), "c1")
		}()
	}

	<-arrived
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, hits.Load())
}

func TestEntityValidator_CallerDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	v := newCustomerValidator(srv, EntityValidatorConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := v.Exists(ctx, "c1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEntityValidator_JoinerKeepsItsOwnDeadline(t *testing.T) {
	var hits atomic.Int32
	arrived := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		arrived <- struct{}{}
		select {
		case <-time.After(200 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	v := newCustomerValidator(srv, EntityValidatorConfig{CallTimeout: 2 * time.Second})

	impatient := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		impatient <- v.Exists(ctx, "c1")
	}()
	<-arrived

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, v.Exists(ctx, "c1"))
	assert.ErrorIs(t, <-impatient, context.DeadlineExceeded)
	assert.EqualValues(t, 1, hits.Load())
}
