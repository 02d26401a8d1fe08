// Package browser implements the multi-tenant session and tab lifecycle:
// tenant-keyed sessions over isolated driver contexts, grouped tabs with
// per-tab serialization, capacity limits, and idle eviction.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"tabhost-server/internal/config"
	"tabhost-server/internal/driver"
	"tabhost-server/internal/refs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TabState is one open page and its interaction bookkeeping. The page handle
// and ref table are touched only while the tab's lock is held; the counters
// carry their own mutex because read-only listings inspect them without
// taking any tab lock.
type TabState struct {
	ID       string
	GroupKey string

	page      driver.Page
	refTable  refs.Table
	createdAt time.Time

	mu           sync.Mutex
	visited      map[string]struct{}
	interactions int
}

// Page returns the driver handle for this tab.
func (t *TabState) Page() driver.Page { return t.page }

// Refs returns the current reference table. Stale entries stay valid as keys
// until the next successful mutating operation replaces the whole table.
func (t *TabState) Refs() refs.Table { return t.refTable }

// SetRefs replaces the reference table wholesale. Call only after a mutating
// operation succeeds; a failed operation must leave the prior table in place.
func (t *TabState) SetRefs(table refs.Table) { t.refTable = table }

// RecordVisit notes a successfully navigated URL and bumps the interaction
// counter.
func (t *TabState) RecordVisit(rawURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rawURL != "" {
		t.visited[rawURL] = struct{}{}
	}
	t.interactions++
}

// RecordInteraction bumps the interaction counter for non-navigation actions.
func (t *TabState) RecordInteraction() {
	t.mu.Lock()
	t.interactions++
	t.mu.Unlock()
}

// Interactions returns how many actions have run against this tab.
func (t *TabState) Interactions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.interactions
}

// VisitedCount returns how many distinct URLs this tab has loaded.
func (t *TabState) VisitedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.visited)
}

// TabGroup collects the tabs of one logical task or conversation.
type TabGroup struct {
	Key  string
	tabs map[string]*TabState
}

// Session is one tenant's browsing state: an isolated driver context plus
// its tab groups. At most one Session exists per tenant.
type Session struct {
	TenantID string

	dctx       driver.Context
	groups     map[string]*TabGroup
	lastAccess time.Time
}

func (s *Session) tabCount() int {
	n := 0
	for _, g := range s.groups {
		n += len(g.tabs)
	}
	return n
}

func (s *Session) findTab(tabID string) *TabState {
	// Linear scan; the per-session tab quota keeps this tiny.
	for _, g := range s.groups {
		if t, ok := g.tabs[tabID]; ok {
			return t
		}
	}
	return nil
}

// SessionRegistry owns every live session, enforces the session and tab
// quotas, and evicts idle sessions on a fixed interval.
type SessionRegistry struct {
	drv    driver.Driver
	limits config.LimitsConfig
	logger *zap.Logger
	locks  *TabLock

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionRegistry creates an empty registry backed by drv.
func NewSessionRegistry(drv driver.Driver, limits config.LimitsConfig, logger *zap.Logger) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		drv:      drv,
		limits:   limits,
		logger:   logger,
		locks:    NewTabLock(),
		sessions: make(map[string]*Session),
	}
}

// GetOrCreateSession returns the tenant's session, creating it lazily. The
// first call for a tenant pays the driver's context-creation cost. Fails with
// ErrQuotaExceeded when the global session cap is reached.
func (r *SessionRegistry) GetOrCreateSession(ctx context.Context, tenantID string) (*Session, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrInvalidInput)
	}

	r.mu.Lock()
	if s, ok := r.sessions[tenantID]; ok {
		s.lastAccess = time.Now()
		r.mu.Unlock()
		return s, nil
	}
	if len(r.sessions) >= r.limits.MaxSessions {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: session cap %d reached", ErrQuotaExceeded, r.limits.MaxSessions)
	}
	r.mu.Unlock()

	// The engine call runs outside the registry lock: a cold start or hung
	// roundtrip for one tenant must not stall unrelated requests.
	dctx, err := r.drv.NewContext(ctx)
	if err != nil {
		return nil, engineErr("create context", err)
	}

	r.mu.Lock()
	if s, ok := r.sessions[tenantID]; ok {
		// Lost the race to a concurrent request for the same tenant.
		s.lastAccess = time.Now()
		r.mu.Unlock()
		if cerr := dctx.Close(); cerr != nil {
			r.logger.Warn("surplus context release failed",
				zap.String("tenant_id", tenantID), zap.Error(cerr))
		}
		return s, nil
	}
	if len(r.sessions) >= r.limits.MaxSessions {
		r.mu.Unlock()
		if cerr := dctx.Close(); cerr != nil {
			r.logger.Warn("context release after quota race failed",
				zap.String("tenant_id", tenantID), zap.Error(cerr))
		}
		return nil, fmt.Errorf("%w: session cap %d reached", ErrQuotaExceeded, r.limits.MaxSessions)
	}

	s := &Session{
		TenantID:   tenantID,
		dctx:       dctx,
		groups:     make(map[string]*TabGroup),
		lastAccess: time.Now(),
	}
	r.sessions[tenantID] = s
	r.mu.Unlock()

	r.logger.Info("session created", zap.String("tenant_id", tenantID))
	return s, nil
}

// CloseSession releases the tenant's driver context and drops every tab.
// Idempotent: closing an absent session is a no-op.
func (r *SessionRegistry) CloseSession(tenantID string) {
	r.mu.Lock()
	s, ok := r.sessions[tenantID]
	if ok {
		delete(r.sessions, tenantID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.releaseSession(s)
	r.logger.Info("session closed", zap.String("tenant_id", tenantID))
}

// releaseSession closes every tab page, forgets their locks, and releases the
// driver context. Release failures are logged, never retried.
func (r *SessionRegistry) releaseSession(s *Session) {
	for _, g := range s.groups {
		for id, t := range g.tabs {
			if err := t.page.Close(); err != nil {
				r.logger.Warn("tab close failed during session release",
					zap.String("tenant_id", s.TenantID),
					zap.String("tab_id", id),
					zap.Error(err))
			}
			r.locks.Forget(id)
		}
	}
	if err := s.dctx.Close(); err != nil {
		r.logger.Warn("context release failed",
			zap.String("tenant_id", s.TenantID),
			zap.Error(err))
	}
}

// SweepIdle evicts every session idle longer than the configured timeout and
// returns how many it removed.
func (r *SessionRegistry) SweepIdle(now time.Time) int {
	timeout := r.limits.GetSessionTimeout()

	r.mu.Lock()
	var expired []*Session
	for tenantID, s := range r.sessions {
		if now.Sub(s.lastAccess) > timeout {
			expired = append(expired, s)
			delete(r.sessions, tenantID)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.releaseSession(s)
		r.logger.Info("idle session swept",
			zap.String("tenant_id", s.TenantID),
			zap.Duration("idle", now.Sub(s.lastAccess)))
	}
	return len(expired)
}

// StartSweeper runs SweepIdle on the configured interval until ctx ends.
func (r *SessionRegistry) StartSweeper(ctx context.Context) {
	interval := r.limits.GetSweepInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				r.SweepIdle(now)
			}
		}
	}()
}

// OpenTab creates a tab in the tenant's session under groupKey, optionally
// navigating to initialURL first. The tab quota is counted across all groups.
// Nothing is registered unless every step succeeds: a failed initial
// navigation closes the page and reports the engine error.
func (r *SessionRegistry) OpenTab(ctx context.Context, tenantID, groupKey, initialURL string) (*TabState, error) {
	if groupKey == "" {
		return nil, fmt.Errorf("%w: group_key is required", ErrInvalidInput)
	}
	if initialURL != "" {
		if err := ValidateURL(initialURL); err != nil {
			return nil, err
		}
	}

	s, err := r.GetOrCreateSession(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if s.tabCount() >= r.limits.MaxTabsPerSession {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: tab cap %d reached", ErrQuotaExceeded, r.limits.MaxTabsPerSession)
	}
	dctx := s.dctx
	r.mu.Unlock()

	page, err := dctx.NewPage(ctx)
	if err != nil {
		return nil, engineErr("create page", err)
	}

	tab := &TabState{
		ID:        uuid.NewString(),
		GroupKey:  groupKey,
		page:      page,
		refTable:  refs.Table{},
		visited:   make(map[string]struct{}),
		createdAt: time.Now(),
	}

	if initialURL != "" {
		if err := page.Navigate(ctx, initialURL); err != nil {
			if cerr := page.Close(); cerr != nil {
				r.logger.Warn("page close after failed navigation",
					zap.String("tenant_id", tenantID), zap.Error(cerr))
			}
			return nil, engineErr("navigate", err)
		}
		tab.RecordVisit(initialURL)
	}

	r.mu.Lock()
	// Re-check under the lock: another request may have filled the quota
	// while the page was being created.
	if s.tabCount() >= r.limits.MaxTabsPerSession {
		r.mu.Unlock()
		if cerr := page.Close(); cerr != nil {
			r.logger.Warn("page close after quota race",
				zap.String("tenant_id", tenantID), zap.Error(cerr))
		}
		return nil, fmt.Errorf("%w: tab cap %d reached", ErrQuotaExceeded, r.limits.MaxTabsPerSession)
	}
	g, ok := s.groups[groupKey]
	if !ok {
		g = &TabGroup{Key: groupKey, tabs: make(map[string]*TabState)}
		s.groups[groupKey] = g
	}
	g.tabs[tab.ID] = tab
	s.lastAccess = time.Now()
	r.mu.Unlock()

	r.logger.Info("tab opened",
		zap.String("tenant_id", tenantID),
		zap.String("group_key", groupKey),
		zap.String("tab_id", tab.ID),
		zap.String("url", initialURL))
	return tab, nil
}

// FindTab locates the tenant's tab. A tab owned by another tenant reports the
// same ErrNotFound as a missing tab; existence never leaks across tenants.
func (r *SessionRegistry) FindTab(tenantID, tabID string) (*TabState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[tenantID]
	if !ok {
		return nil, fmt.Errorf("%w: tab %s", ErrNotFound, tabID)
	}
	t := s.findTab(tabID)
	if t == nil {
		return nil, fmt.Errorf("%w: tab %s", ErrNotFound, tabID)
	}
	return t, nil
}

// WithTab resolves the tab, refreshes the session's last-access time, and
// runs fn under the tab's lock. Same-tab operations run in submission order;
// unrelated tabs proceed in parallel.
func (r *SessionRegistry) WithTab(ctx context.Context, tenantID, tabID string, fn func(*TabState) error) error {
	r.mu.Lock()
	s, ok := r.sessions[tenantID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: tab %s", ErrNotFound, tabID)
	}
	t := s.findTab(tabID)
	if t == nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: tab %s", ErrNotFound, tabID)
	}
	s.lastAccess = time.Now()
	r.mu.Unlock()

	return r.locks.WithLock(ctx, tabID, func() error {
		return fn(t)
	})
}

// CloseTab removes the tab, closes its page, drops its lock entry, and
// removes the group if now empty. Idempotent: a missing tab is a no-op.
func (r *SessionRegistry) CloseTab(tenantID, tabID string) {
	r.mu.Lock()
	var tab *TabState
	if s, ok := r.sessions[tenantID]; ok {
		for key, g := range s.groups {
			if t, ok := g.tabs[tabID]; ok {
				tab = t
				delete(g.tabs, tabID)
				if len(g.tabs) == 0 {
					delete(s.groups, key)
				}
				s.lastAccess = time.Now()
				break
			}
		}
	}
	r.mu.Unlock()

	if tab == nil {
		return
	}
	if err := tab.page.Close(); err != nil {
		r.logger.Warn("tab close failed",
			zap.String("tenant_id", tenantID),
			zap.String("tab_id", tabID),
			zap.Error(err))
	}
	r.locks.Forget(tabID)
	r.logger.Info("tab closed",
		zap.String("tenant_id", tenantID),
		zap.String("tab_id", tabID))
}

// CloseGroup closes every tab under groupKey for the tenant. Idempotent.
func (r *SessionRegistry) CloseGroup(tenantID, groupKey string) {
	r.mu.Lock()
	var tabs []*TabState
	if s, ok := r.sessions[tenantID]; ok {
		if g, ok := s.groups[groupKey]; ok {
			for _, t := range g.tabs {
				tabs = append(tabs, t)
			}
			delete(s.groups, groupKey)
			s.lastAccess = time.Now()
		}
	}
	r.mu.Unlock()

	for _, t := range tabs {
		if err := t.page.Close(); err != nil {
			r.logger.Warn("tab close failed during group close",
				zap.String("tenant_id", tenantID),
				zap.String("tab_id", t.ID),
				zap.Error(err))
		}
		r.locks.Forget(t.ID)
	}
}

// TabInfo is the read-only listing shape for one tab.
type TabInfo struct {
	TabID        string `json:"tab_id"`
	GroupKey     string `json:"group_key"`
	URL          string `json:"url"`
	Interactions int    `json:"interactions"`
	VisitedURLs  int    `json:"visited_urls"`
}

// ListTabs returns metadata for the tenant's tabs, optionally filtered by
// group. An unknown tenant yields an empty list, not an error.
func (r *SessionRegistry) ListTabs(tenantID, groupKey string) []TabInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []TabInfo{}
	s, ok := r.sessions[tenantID]
	if !ok {
		return out
	}
	for key, g := range s.groups {
		if groupKey != "" && key != groupKey {
			continue
		}
		for _, t := range g.tabs {
			out = append(out, TabInfo{
				TabID:        t.ID,
				GroupKey:     key,
				URL:          t.page.URL(),
				Interactions: t.Interactions(),
				VisitedURLs:  t.VisitedCount(),
			})
		}
	}
	return out
}

// Stats summarizes registry occupancy without touching any tab lock.
type Stats struct {
	Sessions       int            `json:"sessions"`
	Tabs           int            `json:"tabs"`
	TabsPerSession map[string]int `json:"tabs_per_session"`
}

// Stats snapshots current occupancy.
func (r *SessionRegistry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st := Stats{
		Sessions:       len(r.sessions),
		TabsPerSession: make(map[string]int, len(r.sessions)),
	}
	for tenantID, s := range r.sessions {
		n := s.tabCount()
		st.Tabs += n
		st.TabsPerSession[tenantID] = n
	}
	return st
}

// Shutdown closes every session. Used at process exit.
func (r *SessionRegistry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		r.releaseSession(s)
	}
}

// ValidateURL accepts only parseable http/https URLs with a host.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: malformed url %q", ErrInvalidInput, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url scheme %q not allowed", ErrInvalidInput, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url %q has no host", ErrInvalidInput, raw)
	}
	return nil
}
