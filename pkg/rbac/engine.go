package rbac

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/chitragupt/chitragupt/pkg/observability"
)

// Engine answers permission questions against the store. Lookups are
// memoized in a TTL-bounded LRU; any mutation or rules reload purges the
// cache so grants never outlive the state that produced them.
type Engine struct {
	store   *Store
	cache   *expirable.LRU[string, bool]
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewEngine creates an engine over store. cacheSize 0 disables caching.
func NewEngine(store *Store, cacheSize int, cacheTTL time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	e := &Engine{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
	if cacheSize > 0 {
		e.cache = expirable.NewLRU[string, bool](cacheSize, nil, cacheTTL)
	}
	return e
}

// Level resolves the effective level for id. Principals absent from the
// store are Guests.
func (e *Engine) Level(id int64) Level {
	if p, ok := e.store.GetPrincipal(id); ok {
		return p.Level
	}
	return LevelGuest
}

// HasPermission reports whether id may perform action. A level with no
// defined rule falls back to the Guest rule; if even that is missing the
// answer is no. Denial by default keeps a misconfigured rules document
// from opening the gates.
func (e *Engine) HasPermission(id int64, action string) bool {
	key := fmt.Sprintf("%d|%s", id, action)
	if e.cache != nil {
		if granted, ok := e.cache.Get(key); ok {
			if e.metrics != nil {
				e.metrics.PermissionCacheHits.Inc()
			}
			return granted
		}
	}

	granted := e.ruleFor(e.Level(id)).HasAction(action)
	if e.cache != nil {
		e.cache.Add(key, granted)
	}
	if e.metrics != nil {
		e.metrics.ObservePermissionCheck(action, granted)
	}
	return granted
}

// SetUserLevel assigns level to id, creating the principal if needed.
// Rejects invalid levels before touching any state.
func (e *Engine) SetUserLevel(id int64, level Level, name string) error {
	if err := e.store.UpsertPrincipal(Principal{ID: id, Name: name, Level: level}); err != nil {
		return err
	}
	e.InvalidateCache()
	e.logger.WithFields(map[string]any{
		"principal": id,
		"level":     int(level),
	}).Info("principal level set")
	return nil
}

// Enrich updates a principal's stored metadata without changing its
// level. Unknown principals are registered as Guests.
func (e *Engine) Enrich(p Principal) error {
	p.Level = e.Level(p.ID)
	if err := e.store.UpsertPrincipal(p); err != nil {
		return err
	}
	e.InvalidateCache()
	return nil
}

// RoleName returns the display name of id's effective role
func (e *Engine) RoleName(id int64) string {
	rule := e.ruleFor(e.Level(id))
	if rule.Name == "" {
		return "Guest"
	}
	return rule.Name
}

// UserActions returns the action slugs id's role grants
func (e *Engine) UserActions(id int64) []string {
	return e.ruleFor(e.Level(id)).Actions
}

// SuperAdmins returns the ids of every level-100 principal, ascending
func (e *Engine) SuperAdmins() []int64 {
	return e.store.ListByLevel(LevelSuperAdmin)
}

// Store exposes the backing store
func (e *Engine) Store() *Store {
	return e.store
}

// InvalidateCache drops every memoized permission answer
func (e *Engine) InvalidateCache() {
	if e.cache != nil {
		e.cache.Purge()
	}
}

func (e *Engine) ruleFor(level Level) RoleDefinition {
	if rule, ok := e.store.Rule(level); ok {
		return rule
	}
	if rule, ok := e.store.Rule(LevelGuest); ok {
		return rule
	}
	return RoleDefinition{}
}
