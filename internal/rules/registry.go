package rules

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Registry provides cached access to rules with write-through
// persistence. Reads are served from an in-memory cache refreshed on
// startup and kept current by the registry's own mutations; every
// returned rule is a deep copy, so callers can never corrupt the cache.
//
// Registry implements RuleStore for the Coordinator.
type Registry struct {
	repo    Repository
	cache   map[string]*Rule
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a rule registry backed by the given repository.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Rule),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used by the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// RefreshCache reloads the cache from the repository.
func (r *Registry) RefreshCache(ctx context.Context) error {
	rules, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	cache := make(map[string]*Rule, len(rules))
	for i := range rules {
		cache[rules[i].ID] = &rules[i]
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.cacheMu.Unlock()

	r.logger.Info("rule cache refreshed", "count", len(cache))
	return nil
}

// GetRule returns the rule with the given ID.
func (r *Registry) GetRule(ctx context.Context, id string) (*Rule, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()
	if ok {
		return cached.DeepCopy(), nil
	}

	rule, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[rule.ID] = rule
	r.cacheMu.Unlock()

	return rule.DeepCopy(), nil
}

// ListRules returns all rules, highest priority first.
func (r *Registry) ListRules(ctx context.Context) ([]Rule, error) {
	rules, err := r.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// ListEnabled returns enabled rules, highest priority first. Served
// from the cache so run starts never block on the database.
func (r *Registry) ListEnabled(_ context.Context) ([]Rule, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	rules := make([]Rule, 0, len(r.cache))
	for _, rule := range r.cache {
		if rule.Enabled {
			rules = append(rules, *rule.DeepCopy())
		}
	}
	return rules, nil
}

// CreateRule validates and persists a new rule. A missing ID is
// generated; created and updated timestamps are set by the repository.
func (r *Registry) CreateRule(ctx context.Context, rule *Rule) (*Rule, error) {
	if rule.ID == "" {
		rule.ID = GenerateID()
	}
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	if err := r.repo.Create(ctx, rule); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("rule created", "rule_id", rule.ID, "name", rule.Name, "type", rule.Type)
	return rule.DeepCopy(), nil
}

// UpdateRule validates and persists changes to an existing rule.
func (r *Registry) UpdateRule(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}

	if err := r.repo.Update(ctx, rule); err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[rule.ID] = rule.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("rule updated", "rule_id", rule.ID, "name", rule.Name)
	return rule.DeepCopy(), nil
}

// DeleteRule removes a rule.
func (r *Registry) DeleteRule(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("rule deleted", "rule_id", id)
	return nil
}

// SetEnabled toggles a rule on or off.
func (r *Registry) SetEnabled(ctx context.Context, id string, enabled bool) (*Rule, error) {
	rule, err := r.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled
	return r.UpdateRule(ctx, rule)
}

// SetLastTriggered persists the fire-once marker for a schedule rule
// and keeps the cache in step. The write must succeed before callers
// proceed; on failure the cache is left untouched.
func (r *Registry) SetLastTriggered(ctx context.Context, id string, triggered time.Time) error {
	if err := r.repo.SetLastTriggered(ctx, id, triggered); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		ts := triggered
		cached.LastTriggered = &ts
	}
	r.cacheMu.Unlock()

	return nil
}

// SetStatus updates the free-form status fields shown in listings.
func (r *Registry) SetStatus(ctx context.Context, id string, status, message string) error {
	if err := r.repo.SetStatus(ctx, id, status, message); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		cached.Status = status
		cached.StatusMessage = message
	}
	r.cacheMu.Unlock()

	return nil
}

// RuleCount returns the number of cached rules.
func (r *Registry) RuleCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
