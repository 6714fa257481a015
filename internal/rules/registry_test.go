package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// MockRepository is a mutex-guarded in-memory Repository for registry tests.
type MockRepository struct {
	mu     sync.Mutex
	rules  map[string]*Rule
	setErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{rules: make(map[string]*Rule)}
}

func (m *MockRepository) GetByID(_ context.Context, id string) (*Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return rule.DeepCopy(), nil
}

func (m *MockRepository) List(_ context.Context) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rule, 0, len(m.rules))
	for _, rule := range m.rules {
		out = append(out, *rule.DeepCopy())
	}
	return out, nil
}

func (m *MockRepository) ListEnabled(_ context.Context) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Rule, 0, len(m.rules))
	for _, rule := range m.rules {
		if rule.Enabled {
			out = append(out, *rule.DeepCopy())
		}
	}
	return out, nil
}

func (m *MockRepository) Create(_ context.Context, rule *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rules[rule.ID]; exists {
		return ErrRuleExists
	}
	m.rules[rule.ID] = rule.DeepCopy()
	return nil
}

func (m *MockRepository) Update(_ context.Context, rule *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rules[rule.ID]; !exists {
		return ErrRuleNotFound
	}
	m.rules[rule.ID] = rule.DeepCopy()
	return nil
}

func (m *MockRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rules[id]; !exists {
		return ErrRuleNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *MockRepository) SetLastTriggered(_ context.Context, id string, triggered time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	rule, ok := m.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	ts := triggered
	rule.LastTriggered = &ts
	return nil
}

func (m *MockRepository) SetStatus(_ context.Context, id string, status, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule, ok := m.rules[id]
	if !ok {
		return ErrRuleNotFound
	}
	rule.Status = status
	rule.StatusMessage = message
	return nil
}

func setupRegistry(t *testing.T) (*Registry, *MockRepository) {
	t.Helper()
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}
	return registry, repo
}

func TestRegistry_CreateAndGet(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	created, err := registry.CreateRule(ctx, validTestRule())
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if created.ID == "" {
		t.Error("expected generated ID")
	}

	got, err := registry.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if got.Name != created.Name {
		t.Errorf("name = %q, want %q", got.Name, created.Name)
	}
}

func TestRegistry_CreateValidates(t *testing.T) {
	registry, _ := setupRegistry(t)

	broken := validTestRule()
	broken.Actions = nil
	if _, err := registry.CreateRule(context.Background(), broken); !errors.Is(err, ErrNoActions) {
		t.Errorf("CreateRule() error = %v, want ErrNoActions", err)
	}
}

func TestRegistry_CacheIsolation(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	created, err := registry.CreateRule(ctx, validTestRule())
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	// Mutating a returned rule must not corrupt the cached copy.
	created.Conditions[0].Value = "tampered"
	created.Actions[0].Action = "tampered"

	got, err := registry.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if got.Conditions[0].Value == "tampered" || got.Actions[0].Action == "tampered" {
		t.Error("cache shares memory with returned rule")
	}
}

func TestRegistry_ListEnabledServedFromCache(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	enabled := validTestRule()
	if _, err := registry.CreateRule(ctx, enabled); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	disabled := validTestRule()
	disabled.Enabled = false
	if _, err := registry.CreateRule(ctx, disabled); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	rules, err := registry.ListEnabled(ctx)
	if err != nil {
		t.Fatalf("ListEnabled() error = %v", err)
	}
	if len(rules) != 1 || rules[0].ID != enabled.ID {
		t.Errorf("enabled rules = %+v, want just %s", rules, enabled.ID)
	}
}

func TestRegistry_SetEnabled(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	created, err := registry.CreateRule(ctx, validTestRule())
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	updated, err := registry.SetEnabled(ctx, created.ID, false)
	if err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	if updated.Enabled {
		t.Error("expected rule disabled")
	}

	rules, _ := registry.ListEnabled(ctx)
	if len(rules) != 0 {
		t.Errorf("enabled rules = %d, want 0", len(rules))
	}
}

func TestRegistry_SetLastTriggeredUpdatesCache(t *testing.T) {
	registry, repo := setupRegistry(t)
	ctx := context.Background()

	created, err := registry.CreateRule(ctx, validTestRule())
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	fired := time.Date(2026, 3, 15, 7, 0, 0, 0, time.UTC)
	if err := registry.SetLastTriggered(ctx, created.ID, fired); err != nil {
		t.Fatalf("SetLastTriggered() error = %v", err)
	}

	got, err := registry.GetRule(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if got.LastTriggered == nil || !got.LastTriggered.Equal(fired) {
		t.Errorf("cached last_triggered = %v, want %v", got.LastTriggered, fired)
	}

	// Failure must leave the cache untouched.
	repo.setErr = errors.New("database is locked")
	if err := registry.SetLastTriggered(ctx, created.ID, fired.Add(time.Hour)); err == nil {
		t.Fatal("expected error")
	}
	got, _ = registry.GetRule(ctx, created.ID)
	if !got.LastTriggered.Equal(fired) {
		t.Error("cache updated despite persistence failure")
	}
}

func TestRegistry_Delete(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	created, err := registry.CreateRule(ctx, validTestRule())
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}
	if err := registry.DeleteRule(ctx, created.ID); err != nil {
		t.Fatalf("DeleteRule() error = %v", err)
	}
	if _, err := registry.GetRule(ctx, created.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("GetRule() after delete error = %v, want ErrRuleNotFound", err)
	}
	if registry.RuleCount() != 0 {
		t.Errorf("rule count = %d, want 0", registry.RuleCount())
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	registry, _ := setupRegistry(t)
	ctx := context.Background()

	created, err := registry.CreateRule(ctx, validTestRule())
	if err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = registry.GetRule(ctx, created.ID)
			_, _ = registry.ListEnabled(ctx)
			_ = registry.SetLastTriggered(ctx, created.ID, time.Now().UTC())
		}()
	}
	wg.Wait()
}
