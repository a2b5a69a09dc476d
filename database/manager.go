package database

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/logger"
)

// GroupSource resolves connection group names to configurations.
// *config.Config implements it.
type GroupSource interface {
	Group(name string) (config.DatabaseConfig, bool)
}

// Connector creates a Connection for a group configuration.
type Connector func(*config.DatabaseConfig, logger.Logger) (*Connection, error)

// ErrUnknownGroup is returned by Manager.Get for groups the source does not know.
var ErrUnknownGroup = errors.New("unknown database group")

// Manager shares one Connection per configuration group.
//
// Connections are created lazily on first use, concurrent first uses of the
// same group are collapsed into one creation, the least recently used group is
// closed when the manager is full and groups idle beyond the TTL are closed
// by the cleanup loop.
type Manager struct {
	logger    logger.Logger
	source    GroupSource
	connector Connector
	queryLog  *QueryLog

	mu    sync.RWMutex
	conns map[string]*managedConn

	lru     *list.List
	maxSize int

	idleTTL   time.Duration
	cleanupMu sync.Mutex
	cleanupCh chan struct{}

	sfg singleflight.Group
}

type managedConn struct {
	conn     *Connection
	element  *list.Element
	lastUsed time.Time
	group    string
}

// usedAt is the later of the last hand-out and the connection's own last use.
func (e *managedConn) usedAt() time.Time {
	if t := e.conn.LastUsed(); t.After(e.lastUsed) {
		return t
	}
	return e.lastUsed
}

// ManagerOptions bounds the manager.
type ManagerOptions struct {
	MaxSize int           // Maximum number of live groups (0 = no limit)
	IdleTTL time.Duration // Groups unused for longer are closed by the cleanup loop (0 = never)
	// QueryLog, when set, is attached to every connection the manager creates.
	QueryLog *QueryLog
}

// ManagerOptionsFromConfig converts the manager section of the configuration.
func ManagerOptionsFromConfig(cfg config.ManagerConfig) ManagerOptions {
	opts := ManagerOptions{MaxSize: cfg.MaxSize, IdleTTL: cfg.IdleTTL}
	if cfg.QueryLog > 0 {
		opts.QueryLog = NewQueryLog(cfg.QueryLog)
	}
	return opts
}

// NewManager creates a manager over source. A nil connector uses Open.
func NewManager(source GroupSource, log logger.Logger, opts ManagerOptions, connector Connector) *Manager {
	if connector == nil {
		connector = Open
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Manager{
		logger:    log,
		source:    source,
		connector: connector,
		queryLog:  opts.QueryLog,
		conns:     make(map[string]*managedConn),
		lru:       list.New(),
		maxSize:   opts.MaxSize,
		idleTTL:   opts.IdleTTL,
	}
}

// Get returns the shared connection of group, creating it on first use.
// An empty group selects config.DefaultGroup.
func (m *Manager) Get(_ context.Context, group string) (*Connection, error) {
	if group == "" {
		group = config.DefaultGroup
	}
	if conn := m.getExisting(group); conn != nil {
		return conn, nil
	}

	result, err, _ := m.sfg.Do(group, func() (any, error) {
		if conn := m.getExisting(group); conn != nil {
			return conn, nil
		}
		return m.createConnection(group)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Connection), nil
}

// getExisting returns a live connection and marks it used, or nil.
func (m *Manager) getExisting(group string) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.conns[group]
	if !exists {
		return nil
	}
	entry.lastUsed = time.Now()
	m.lru.MoveToFront(entry.element)
	return entry.conn
}

func (m *Manager) createConnection(group string) (*Connection, error) {
	cfg, ok := m.source.Group(group)
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrUnknownGroup, config.GroupNotConfigured(group))
	}

	conn, err := m.connector(&cfg, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection for group %s: %w", group, err)
	}
	if m.queryLog != nil {
		conn.AddQueryListener(m.queryLog.Record)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.conns[group]; exists {
		if err := conn.Close(); err != nil {
			m.logger.Warn().Err(err).Str("group", group).Msg("Error closing duplicate database connection")
		}
		existing.lastUsed = time.Now()
		m.lru.MoveToFront(existing.element)
		return existing.conn, nil
	}

	m.evictIfNeeded()

	m.conns[group] = &managedConn{
		conn:     conn,
		element:  m.lru.PushFront(group),
		lastUsed: time.Now(),
		group:    group,
	}

	m.logger.Info().
		Str("group", group).
		Str("driver", cfg.Driver).
		Str("connection_id", conn.ID()).
		Msg("Created database connection group")
	return conn, nil
}

// evictIfNeeded closes the least recently used group when at capacity.
func (m *Manager) evictIfNeeded() {
	if m.maxSize <= 0 || len(m.conns) < m.maxSize {
		return
	}
	oldest := m.lru.Back()
	if oldest == nil {
		return
	}
	group := oldest.Value.(string)
	m.removeLocked(group, "Evicted database connection group due to LRU limit")
}

func (m *Manager) removeLocked(group, reason string) {
	entry, ok := m.conns[group]
	if !ok {
		return
	}
	if err := entry.conn.Close(); err != nil {
		m.logger.Error().Err(err).Str("group", group).Msg("Error closing database connection group")
	}
	delete(m.conns, group)
	m.lru.Remove(entry.element)
	m.logger.Debug().Str("group", group).Msg(reason)
}

// Remove closes and forgets group. Unknown groups are ignored.
func (m *Manager) Remove(group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(group, "Removed database connection group")
}

// StartCleanup starts closing groups idle beyond the TTL every interval.
// It does nothing when the TTL is zero or the loop already runs.
func (m *Manager) StartCleanup(interval time.Duration) {
	if m.idleTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	m.cleanupMu.Lock()
	if m.cleanupCh != nil {
		m.cleanupMu.Unlock()
		return
	}
	done := make(chan struct{})
	m.cleanupCh = done
	m.cleanupMu.Unlock()

	go m.cleanupLoop(interval, done)
}

// StopCleanup stops the cleanup loop.
func (m *Manager) StopCleanup() {
	m.cleanupMu.Lock()
	defer m.cleanupMu.Unlock()
	if m.cleanupCh == nil {
		return
	}
	close(m.cleanupCh)
	m.cleanupCh = nil
}

func (m *Manager) cleanupLoop(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupIdle()
		case <-done:
			return
		}
	}
}

// cleanupIdle closes groups unused for longer than the TTL. A group counts as
// used when it is handed out or when its connection runs a statement.
func (m *Manager) cleanupIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for group, entry := range m.conns {
		if now.Sub(entry.usedAt()) > m.idleTTL {
			m.removeLocked(group, "Cleaned up idle database connection group")
		}
	}
}

// QueryLog returns the shared query history, or nil.
func (m *Manager) QueryLog() *QueryLog { return m.queryLog }

// Close stops the cleanup loop and closes every group.
func (m *Manager) Close() error {
	m.StopCleanup()

	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for group, entry := range m.conns {
		if err := entry.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing group %s: %w", group, err))
		}
	}
	m.conns = make(map[string]*managedConn)
	m.lru.Init()
	return errors.Join(errs...)
}

// Size returns the number of live groups.
func (m *Manager) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// Stats describes the live groups.
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := map[string]any{
		"active_groups":    len(m.conns),
		"max_groups":       m.maxSize,
		"idle_ttl_seconds": int(m.idleTTL.Seconds()),
	}

	now := time.Now()
	groups := make([]map[string]any, 0, len(m.conns))
	for group, entry := range m.conns {
		groups = append(groups, map[string]any{
			"group":         group,
			"connection_id": entry.conn.ID(),
			"vendor":        entry.conn.Vendor(),
			"connected":     entry.conn.Connected(),
			"last_used":     entry.usedAt().Format(time.RFC3339),
			"idle_duration": int(now.Sub(entry.usedAt()).Seconds()),
		})
	}
	stats["groups"] = groups
	return stats
}
