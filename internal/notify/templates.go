package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrTemplateNotFound indicates no template row exists for a state.
var ErrTemplateNotFound = fmt.Errorf("email template not found")

// TemplateConfig controls the notification email for one order state.
// Disabled templates silently swallow events for their state.
type TemplateConfig struct {
	StateCode string `json:"stateCode"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Enabled   bool   `json:"enabled"`
}

// TemplateRepository persists template configs.
type TemplateRepository interface {
	GetByState(ctx context.Context, stateCode string) (*TemplateConfig, error)
	List(ctx context.Context) ([]TemplateConfig, error)
	Save(ctx context.Context, t *TemplateConfig) error
}

const templateCacheTTL = time.Hour

// CachedTemplates is a read-through cache over a TemplateRepository.
// Template edits must call Invalidate, otherwise the stale entry lives for
// up to an hour.
type CachedTemplates struct {
	repo  TemplateRepository
	redis *redis.Client
}

var _ TemplateRepository = (*CachedTemplates)(nil)

// NewCachedTemplates wraps repo with a redis read-through cache.
func NewCachedTemplates(repo TemplateRepository, client *redis.Client) *CachedTemplates {
	return &CachedTemplates{repo: repo, redis: client}
}

func templateKey(stateCode string) string {
	return "email-template:" + stateCode
}

func (c *CachedTemplates) GetByState(ctx context.Context, stateCode string) (*TemplateConfig, error) {
	val, err := c.redis.Get(ctx, templateKey(stateCode)).Bytes()
	if err == nil {
		var t TemplateConfig
		if err := json.Unmarshal(val, &t); err == nil {
			return &t, nil
		}
		// Unreadable cache entry, fall through to the repository.
	} else if err != redis.Nil {
		return nil, fmt.Errorf("reading template cache for %q: %w", stateCode, err)
	}

	t, err := c.repo.GetByState(ctx, stateCode)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(t); err == nil {
		_ = c.redis.Set(ctx, templateKey(stateCode), payload, templateCacheTTL).Err()
	}
	return t, nil
}

func (c *CachedTemplates) List(ctx context.Context) ([]TemplateConfig, error) {
	return c.repo.List(ctx)
}

// Save writes through and invalidates the cached entry.
func (c *CachedTemplates) Save(ctx context.Context, t *TemplateConfig) error {
	if err := c.repo.Save(ctx, t); err != nil {
		return err
	}
	return c.Invalidate(ctx, t.StateCode)
}

// Invalidate drops the cached entry for a state.
func (c *CachedTemplates) Invalidate(ctx context.Context, stateCode string) error {
	if err := c.redis.Del(ctx, templateKey(stateCode)).Err(); err != nil {
		return fmt.Errorf("invalidating template cache for %q: %w", stateCode, err)
	}
	return nil
}
