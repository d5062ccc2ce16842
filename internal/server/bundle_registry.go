package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bundle-hub/bundle-hub/internal/bundler"
	"github.com/bundle-hub/bundle-hub/internal/config"
)

// BundleRoute 将 Bundle 配置与其 Bundler 聚合在一起，供路由与诊断接口复用。
type BundleRoute struct {
	// Config 是用户在 config.toml 中声明的 Bundle 字段副本。
	Config  config.BundleConfig
	Bundler *bundler.Bundler
}

// BundleRegistry 提供 name/mount 到 BundleRoute 的查询能力，所有 Bundle 共享同一个监听端口。
type BundleRegistry struct {
	byName  map[string]*BundleRoute
	byMount map[string]*BundleRoute
	ordered []*BundleRoute

	closeOnce sync.Once
	closeErr  error
}

// NewBundleRegistry 返回空注册表；调用方通过 Add 逐个登记 Bundle。
func NewBundleRegistry() *BundleRegistry {
	return &BundleRegistry{
		byName:  make(map[string]*BundleRoute),
		byMount: make(map[string]*BundleRoute),
	}
}

// Add 登记一个 Bundle，名称或挂载路径重复时返回错误。
func (r *BundleRegistry) Add(cfg config.BundleConfig, b *bundler.Bundler) error {
	if b == nil {
		return fmt.Errorf("bundle %s: bundler is nil", cfg.Name)
	}
	if _, exists := r.byName[cfg.Name]; exists {
		return fmt.Errorf("duplicate bundle name %s", cfg.Name)
	}
	if owner, exists := r.byMount[b.Mount()]; exists {
		return fmt.Errorf("bundle %s: mount %s already served by %s", cfg.Name, b.Mount(), owner.Config.Name)
	}
	route := &BundleRoute{Config: cfg, Bundler: b}
	r.byName[cfg.Name] = route
	r.byMount[b.Mount()] = route
	r.ordered = append(r.ordered, route)
	return nil
}

// Lookup 根据 Bundle 名称查找。
func (r *BundleRegistry) Lookup(name string) (*BundleRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.byName[name]
	return route, ok
}

// LookupMount 根据请求路径查找挂载在该路径上的 Bundle。
func (r *BundleRegistry) LookupMount(path string) (*BundleRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.byMount[path]
	return route, ok
}

// List 返回当前注册的 BundleRoute 列表（按配置定义的顺序），用于诊断输出。
func (r *BundleRegistry) List() []*BundleRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}
	return append([]*BundleRoute(nil), r.ordered...)
}

// Close 结束所有 Bundler（关闭 watch 句柄），重复调用只执行一次。
func (r *BundleRegistry) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		var errs []error
		for _, route := range r.ordered {
			if err := route.Bundler.End(); err != nil {
				errs = append(errs, fmt.Errorf("bundle %s: %w", route.Config.Name, err))
			}
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
