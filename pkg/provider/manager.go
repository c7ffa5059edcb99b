// Package provider 管理数据源的注册、选择与组装
package provider

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"stockdata/pkg/provider/core"
	"stockdata/pkg/provider/crawler"
)

// ProviderManager 数据源管理器
//
// 按名称注册数据源，并指定其中一个作为当前数据源。Close 关闭所有数据源
// 以及通过 AddCloser 登记的附属资源（缓存等）。
type ProviderManager struct {
	mu      sync.RWMutex
	sources map[string]core.DataSource
	order   []string
	active  string
	closers []io.Closer
	crawler *crawler.Crawler
	closed  bool
}

// NewProviderManager 创建新的数据源管理器
func NewProviderManager() *ProviderManager {
	return &ProviderManager{
		sources: make(map[string]core.DataSource),
	}
}

// Register 注册数据源，第一个注册的数据源成为当前数据源
func (m *ProviderManager) Register(name string, ds core.DataSource) error {
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if ds == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return core.ErrProviderClosed
	}
	if _, exists := m.sources[name]; exists {
		return fmt.Errorf("provider '%s' already registered", name)
	}
	m.sources[name] = ds
	m.order = append(m.order, name)
	if m.active == "" {
		m.active = name
	}
	return nil
}

// Get 按名称获取数据源
func (m *ProviderManager) Get(name string) (core.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if ds, exists := m.sources[name]; exists {
		return ds, nil
	}
	return nil, fmt.Errorf("%w: '%s'", core.ErrProviderNotFound, name)
}

// SetActive 切换当前数据源
func (m *ProviderManager) SetActive(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sources[name]; !exists {
		return fmt.Errorf("%w: '%s'", core.ErrProviderNotFound, name)
	}
	m.active = name
	return nil
}

// ActiveName 当前数据源名称
func (m *ProviderManager) ActiveName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Active 返回当前数据源，不健康时返回 ErrProviderNotHealthy
func (m *ProviderManager) Active() (core.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, core.ErrProviderClosed
	}
	ds, exists := m.sources[m.active]
	if !exists {
		return nil, core.ErrProviderNotFound
	}
	if !ds.IsHealthy() {
		return nil, fmt.Errorf("%w: '%s'", core.ErrProviderNotHealthy, m.active)
	}
	return ds, nil
}

// List 按注册顺序列出数据源名称
func (m *ProviderManager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Health 各数据源健康状态
func (m *ProviderManager) Health() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]bool, len(m.sources))
	for name, ds := range m.sources {
		out[name] = ds.IsHealthy()
	}
	return out
}

// Unregister 注销数据源，不会关闭它
func (m *ProviderManager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sources[name]; !exists {
		return fmt.Errorf("%w: '%s'", core.ErrProviderNotFound, name)
	}
	delete(m.sources, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.active == name {
		m.active = ""
		if len(m.order) > 0 {
			m.active = m.order[0]
		}
	}
	return nil
}

// AddCloser 登记随管理器一起关闭的资源
func (m *ProviderManager) AddCloser(c io.Closer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closers = append(m.closers, c)
}

// SetCrawler 登记爬虫数据源，供板块、资金流向等扩展接口使用
func (m *ProviderManager) SetCrawler(c *crawler.Crawler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crawler = c
}

// Crawler 返回爬虫数据源，未登记时为 nil
func (m *ProviderManager) Crawler() *crawler.Crawler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.crawler
}

// Close 关闭管理器，清理所有数据源资源
func (m *ProviderManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	for _, name := range m.order {
		if closable, ok := m.sources[name].(core.Closable); ok {
			if err := closable.Close(); err != nil {
				errs = append(errs, fmt.Errorf("error closing provider '%s': %w", name, err))
			}
		}
	}
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	m.sources = make(map[string]core.DataSource)
	m.order = nil
	m.closers = nil
	return errors.Join(errs...)
}
