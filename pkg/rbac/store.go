package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/chitragupt/chitragupt/pkg/observability"
)

// roleEntry is the persisted form of a RoleDefinition, keyed by level
type roleEntry struct {
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
}

// userEntry is the persisted form of a Principal, keyed by id
type userEntry struct {
	Name         string `json:"name"`
	Level        int    `json:"level"`
	Special      bool   `json:"is_special,omitempty"`
	Username     string `json:"username,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	Premium      bool   `json:"is_premium,omitempty"`
}

// Store is the sole owner of the on-disk permission state: the role
// rules, the principal registry, and the approval request log. Every
// mutation rewrites the affected document via a temp file in the same
// directory followed by an atomic rename, and all writers are serialized
// through a single lock.
type Store struct {
	mu sync.RWMutex

	dir          string
	rulesPath    string
	usersPath    string
	requestsPath string

	rules    map[Level]RoleDefinition
	users    map[int64]Principal
	requests map[int64]PendingRequest

	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewStore creates a store rooted at dir. Call Load before use.
func NewStore(dir, rulesFile, usersFile, requestsFile string, logger *observability.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		dir:          dir,
		rulesPath:    filepath.Join(dir, rulesFile),
		usersPath:    filepath.Join(dir, usersFile),
		requestsPath: filepath.Join(dir, requestsFile),
		rules:        make(map[Level]RoleDefinition),
		users:        make(map[int64]Principal),
		requests:     make(map[int64]PendingRequest),
		logger:       logger,
		metrics:      metrics,
	}
}

// Load reads all documents from disk. A missing rules document is seeded
// with the defaults; a missing users or requests document starts empty.
// Any malformed document fails the load: running with unknown permission
// state is worse than not running.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	rules, err := s.loadRules()
	if err != nil {
		return err
	}
	users, err := s.loadUsers()
	if err != nil {
		return err
	}
	requests, err := s.loadRequests()
	if err != nil {
		return err
	}

	s.rules = rules
	s.users = users
	s.requests = requests

	if s.metrics != nil {
		s.metrics.PrincipalsTotal.Set(float64(len(s.users)))
		s.metrics.PendingRequests.Set(float64(s.countPendingLocked()))
	}
	s.logger.WithFields(map[string]any{
		"rules":    len(s.rules),
		"users":    len(s.users),
		"requests": len(s.requests),
	}).Info("permission store loaded")
	return nil
}

func (s *Store) loadRules() (map[Level]RoleDefinition, error) {
	raw, err := os.ReadFile(s.rulesPath)
	if os.IsNotExist(err) {
		defaults := DefaultRules()
		if err := s.writeDocument(s.rulesPath, encodeRules(defaults)); err != nil {
			return nil, fmt.Errorf("seeding default rules: %w", err)
		}
		s.logger.WithField("path", s.rulesPath).Info("seeded default role rules")
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorruptStore, s.rulesPath, err)
	}

	var doc map[string]roleEntry
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, s.rulesPath, err)
	}
	rules := make(map[Level]RoleDefinition, len(doc))
	for key, entry := range doc {
		n, err := strconv.Atoi(key)
		if err != nil || !Level(n).Valid() {
			return nil, fmt.Errorf("%w: %s: level key %q", ErrCorruptStore, s.rulesPath, key)
		}
		rules[Level(n)] = RoleDefinition{Level: Level(n), Name: entry.Name, Actions: entry.Actions}
	}
	return rules, nil
}

func (s *Store) loadUsers() (map[int64]Principal, error) {
	raw, err := os.ReadFile(s.usersPath)
	if os.IsNotExist(err) {
		return make(map[int64]Principal), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorruptStore, s.usersPath, err)
	}

	var doc map[string]userEntry
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, s.usersPath, err)
	}
	users := make(map[int64]Principal, len(doc))
	for key, entry := range doc {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: principal key %q", ErrCorruptStore, s.usersPath, key)
		}
		if !Level(entry.Level).Valid() {
			return nil, fmt.Errorf("%w: %s: principal %s has level %d", ErrCorruptStore, s.usersPath, key, entry.Level)
		}
		users[id] = Principal{
			ID:           id,
			Name:         entry.Name,
			Level:        Level(entry.Level),
			Special:      entry.Special,
			Username:     entry.Username,
			FirstName:    entry.FirstName,
			LastName:     entry.LastName,
			LanguageCode: entry.LanguageCode,
			Premium:      entry.Premium,
		}
	}
	return users, nil
}

func (s *Store) loadRequests() (map[int64]PendingRequest, error) {
	raw, err := os.ReadFile(s.requestsPath)
	if os.IsNotExist(err) {
		return make(map[int64]PendingRequest), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrCorruptStore, s.requestsPath, err)
	}

	var doc map[string]PendingRequest
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptStore, s.requestsPath, err)
	}
	requests := make(map[int64]PendingRequest, len(doc))
	for key, entry := range doc {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: requester key %q", ErrCorruptStore, s.requestsPath, key)
		}
		switch entry.Status {
		case StatusPending, StatusApproved, StatusRejected:
		default:
			return nil, fmt.Errorf("%w: %s: request %s has status %q", ErrCorruptStore, s.requestsPath, key, entry.Status)
		}
		entry.RequesterID = id
		requests[id] = entry
	}
	return requests, nil
}

// ReloadRules re-reads the rules document, replacing the in-memory copy.
// Used by the file watcher for live edits; a malformed document keeps
// the previous rules in place.
func (s *Store) ReloadRules() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, err := s.loadRules()
	if err != nil {
		return err
	}
	s.rules = rules
	s.logger.WithField("rules", len(rules)).Info("role rules reloaded")
	return nil
}

// Rule returns the role definition for level, if one exists
func (s *Store) Rule(level Level) (RoleDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[level]
	return rule, ok
}

// GetPrincipal returns the stored principal for id, if present
func (s *Store) GetPrincipal(id int64) (Principal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.users[id]
	return p, ok
}

// UpsertPrincipal creates or updates a principal. An invalid level is
// rejected before any state changes. Metadata fields that are zero in p
// keep their stored values, so a bare level change does not erase
// enrichment captured earlier.
func (s *Store) UpsertPrincipal(p Principal) error {
	if !p.Level.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidLevel, p.Level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[p.ID]; ok {
		if p.Name == "" {
			p.Name = existing.Name
		}
		if p.Username == "" {
			p.Username = existing.Username
		}
		if p.FirstName == "" {
			p.FirstName = existing.FirstName
		}
		if p.LastName == "" {
			p.LastName = existing.LastName
		}
		if p.LanguageCode == "" {
			p.LanguageCode = existing.LanguageCode
		}
		p.Special = p.Special || existing.Special
		p.Premium = p.Premium || existing.Premium
	}
	if p.Name == "" {
		p.Name = strconv.FormatInt(p.ID, 10)
	}

	s.users[p.ID] = p
	if err := s.persistUsersLocked(); err != nil {
		delete(s.users, p.ID)
		return err
	}
	if s.metrics != nil {
		s.metrics.PrincipalsTotal.Set(float64(len(s.users)))
	}
	return nil
}

// ListByLevel returns the ids of every principal at exactly level,
// in ascending order.
func (s *Store) ListByLevel(level Level) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []int64
	for id, p := range s.users {
		if p.Level == level {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ListPrincipals returns every stored principal, ordered by id
func (s *Store) ListPrincipals() []Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	principals := make([]Principal, 0, len(s.users))
	for _, p := range s.users {
		principals = append(principals, p)
	}
	sort.Slice(principals, func(i, j int) bool { return principals[i].ID < principals[j].ID })
	return principals
}

// SyncSuperAdmin ensures the configured operator id holds SuperAdmin.
// A no-op when the principal is already at level 100.
func (s *Store) SyncSuperAdmin(id int64, name string) error {
	if p, ok := s.GetPrincipal(id); ok && p.Level == LevelSuperAdmin {
		return nil
	}
	return s.UpsertPrincipal(Principal{ID: id, Name: name, Level: LevelSuperAdmin})
}

// GetRequest returns the approval request for requesterID, if any
func (s *Store) GetRequest(requesterID int64) (PendingRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requesterID]
	return req, ok
}

// PutRequest stores a new request, replacing any terminal record for the
// same requester. An existing non-terminal request is left untouched and
// returned with ok=false.
func (s *Store) PutRequest(req PendingRequest) (PendingRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.requests[req.RequesterID]; ok && !existing.Status.Terminal() {
		return existing, false, nil
	}
	s.requests[req.RequesterID] = req
	if err := s.persistRequestsLocked(); err != nil {
		delete(s.requests, req.RequesterID)
		return PendingRequest{}, false, err
	}
	if s.metrics != nil {
		s.metrics.PendingRequests.Set(float64(s.countPendingLocked()))
	}
	return req, true, nil
}

// ResolveRequest transitions the requester's request from PENDING to the
// given terminal status. The compare and set runs under the writer lock,
// so exactly one of two racing decisions wins; the loser gets
// ErrAlreadyResolved along with the winning record.
func (s *Store) ResolveRequest(requesterID int64, decision RequestStatus) (PendingRequest, error) {
	if !decision.Terminal() {
		return PendingRequest{}, fmt.Errorf("decision %q is not terminal", decision)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requesterID]
	if !ok {
		return PendingRequest{}, fmt.Errorf("%w: requester %d", ErrNoSuchRequest, requesterID)
	}
	if req.Status.Terminal() {
		return req, fmt.Errorf("%w: requester %d is %s", ErrAlreadyResolved, requesterID, req.Status)
	}

	prev := req.Status
	req.Status = decision
	s.requests[requesterID] = req
	if err := s.persistRequestsLocked(); err != nil {
		req.Status = prev
		s.requests[requesterID] = req
		return PendingRequest{}, err
	}
	if s.metrics != nil {
		s.metrics.PendingRequests.Set(float64(s.countPendingLocked()))
	}
	return req, nil
}

// ExpireRequests rejects every pending request created before cutoff and
// returns the expired records so their prompts can be amended.
func (s *Store) ExpireRequests(cutoff time.Time) ([]PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []PendingRequest
	for id, req := range s.requests {
		if req.Status == StatusPending && req.CreatedAt.Before(cutoff) {
			req.Status = StatusRejected
			s.requests[id] = req
			expired = append(expired, req)
		}
	}
	if len(expired) == 0 {
		return nil, nil
	}
	if err := s.persistRequestsLocked(); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PendingRequests.Set(float64(s.countPendingLocked()))
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].RequesterID < expired[j].RequesterID })
	return expired, nil
}

// RulesPath returns the on-disk location of the rules document
func (s *Store) RulesPath() string {
	return s.rulesPath
}

// Ping verifies the backing directory is reachable, for health checks
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", s.dir)
	}
	return nil
}

func (s *Store) countPendingLocked() int {
	n := 0
	for _, req := range s.requests {
		if req.Status == StatusPending {
			n++
		}
	}
	return n
}

func (s *Store) persistUsersLocked() error {
	doc := make(map[string]userEntry, len(s.users))
	for id, p := range s.users {
		doc[strconv.FormatInt(id, 10)] = userEntry{
			Name:         p.Name,
			Level:        int(p.Level),
			Special:      p.Special,
			Username:     p.Username,
			FirstName:    p.FirstName,
			LastName:     p.LastName,
			LanguageCode: p.LanguageCode,
			Premium:      p.Premium,
		}
	}
	return s.writeDocumentObserved("users", s.usersPath, doc)
}

func (s *Store) persistRequestsLocked() error {
	doc := make(map[string]PendingRequest, len(s.requests))
	for id, req := range s.requests {
		doc[strconv.FormatInt(id, 10)] = req
	}
	return s.writeDocumentObserved("requests", s.requestsPath, doc)
}

func encodeRules(rules map[Level]RoleDefinition) map[string]roleEntry {
	doc := make(map[string]roleEntry, len(rules))
	for level, rule := range rules {
		doc[strconv.Itoa(int(level))] = roleEntry{Name: rule.Name, Actions: rule.Actions}
	}
	return doc
}

func (s *Store) writeDocumentObserved(document, path string, v any) error {
	start := time.Now()
	err := s.writeDocument(path, v)
	if s.metrics != nil {
		s.metrics.ObserveStoreWrite(document, err, time.Since(start))
	}
	return err
}

// writeDocument marshals v and atomically replaces path: the bytes land
// in a temp file in the same directory, get flushed, then the temp file
// is renamed over the target. Readers never observe a partial document.
func (s *Store) writeDocument(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
