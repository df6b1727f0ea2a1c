package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nimeshabuddhika/resilient-order-saga/pkg"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// EntityValidator checks that a referenced entity exists in its owning service.
type EntityValidator interface {
	// Exists returns nil when the entity was found. A missing entity yields an error wrapping
	// pkg.ErrEntityNotFound; any other failure is returned as is.
	Exists(ctx context.Context, id string) error
}

// EntityValidatorConfig configures a validator for one resource, e.g. customers.
type EntityValidatorConfig struct {
	Logger     *zap.Logger
	HTTPClient *http.Client
	BaseURL    string
	Resource   string
	// CallTimeout bounds one downstream lookup, shared by every caller waiting on it.
	CallTimeout time.Duration
	// Cache is optional. Only positive lookups are cached.
	Cache    redis.Cmdable
	CacheTTL time.Duration
}

// EntityValidatorImpl does GET {BaseURL}/{Resource}/{id} behind a Redis cache-aside.
// Concurrent lookups of the same id share one downstream call.
type EntityValidatorImpl struct {
	EntityValidatorConfig
	group singleflight.Group
}

func NewEntityValidator(cfg EntityValidatorConfig) EntityValidator {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &EntityValidatorImpl{EntityValidatorConfig: cfg}
}

func (v *EntityValidatorImpl) cacheKey(id string) string {
	return fmt.Sprintf("order_saga:entity:%s:%s", v.Resource, id)
}

func (v *EntityValidatorImpl) Exists(ctx context.Context, id string) error {
	if v.cached(ctx, id) {
		return nil
	}

	ch := v.group.DoChan(id, func() (any, error) {
		// the shared call must not inherit the deadline of whichever caller started it
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.CallTimeout)
		defer cancel()
		if err := v.fetch(fetchCtx, id); err != nil {
			return nil, err
		}
		v.remember(fetchCtx, id)
		return nil, nil
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (v *EntityValidatorImpl) fetch(ctx context.Context, id string) error {
	endpoint := fmt.Sprintf("%s/%s/%s", v.BaseURL, v.Resource, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}

	resp, err := v.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s lookup failed: %w", v.Resource, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", v.Resource, id, pkg.ErrEntityNotFound)
	default:
		return fmt.Errorf("%s lookup returned %d: %w", v.Resource, resp.StatusCode, pkg.ErrUnexpectedStatus)
	}
}

func (v *EntityValidatorImpl) cached(ctx context.Context, id string) bool {
	if v.Cache == nil {
		return false
	}
	_, err := v.Cache.Get(ctx, v.cacheKey(id)).Result()
	if err == nil {
		return true
	}
	if !errors.Is(err, redis.Nil) {
		v.Logger.Warn("entity_cache_read_failed", zap.String("resource", v.Resource), zap.Error(err))
	}
	return false
}

func (v *EntityValidatorImpl) remember(ctx context.Context, id string) {
	if v.Cache == nil {
		return
	}
	if err := v.Cache.Set(ctx, v.cacheKey(id), "1", v.CacheTTL).Err(); err != nil {
		v.Logger.Warn("entity_cache_write_failed", zap.String("resource", v.Resource), zap.Error(err))
	}
}
