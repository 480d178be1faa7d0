package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// WatchableSource 可选的配置源监听能力。
// 支持监听的源在配置变更时回调 onChange，由上层触发整体重载。
type WatchableSource interface {
	ConfigurationSource
	// StartWatch 启动监听。允许阻塞之外的后台 Goroutine。
	StartWatch(ctx context.Context, onChange func()) error
	// StopWatch 停止监听并释放资源。
	StopWatch()
}

// ReloadableConfiguration 可重载配置：持有配置源列表，Reload 时重新
// 加载全部源并原子替换数据快照。读取走 ValueStore 的无锁路径。
type ReloadableConfiguration struct {
	sources []ConfigurationSource
	store   *ValueStore

	reloadMu sync.Mutex

	cbMu      sync.RWMutex
	callbacks []func()
}

// BuildReloadable 构建可重载配置。初始加载失败直接返回错误。
func (b *ConfigurationBuilder) BuildReloadable() (*ReloadableConfiguration, error) {
	b.mu.RLock()
	sources := append([]ConfigurationSource(nil), b.sources...)
	b.mu.RUnlock()

	rc := &ReloadableConfiguration{
		sources: sources,
		store:   NewValueStore(),
	}
	if err := rc.Reload(); err != nil {
		return nil, err
	}
	return rc, nil
}

// GetSources 返回配置源列表副本。
func (b *ConfigurationBuilder) GetSources() []ConfigurationSource {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]ConfigurationSource(nil), b.sources...)
}

// Reload 重新加载全部配置源并替换快照，随后通知重载回调。
// 任一源加载失败则保留旧快照。
func (rc *ReloadableConfiguration) Reload() error {
	rc.reloadMu.Lock()
	defer rc.reloadMu.Unlock()

	merged := make(map[string]any)
	for _, source := range rc.sources {
		data, err := source.Load()
		if err != nil {
			return fmt.Errorf("config: load source %s: %w", source.Name(), err)
		}
		mergeMaps(merged, data)
	}
	rc.store.Store(merged)

	rc.cbMu.RLock()
	callbacks := append([]func(){}, rc.callbacks...)
	rc.cbMu.RUnlock()
	for _, cb := range callbacks {
		cb()
	}
	return nil
}

// OnReload 注册重载回调。OptionsCache 通过此回调感知配置变更。
func (rc *ReloadableConfiguration) OnReload(fn func()) {
	rc.cbMu.Lock()
	rc.callbacks = append(rc.callbacks, fn)
	rc.cbMu.Unlock()
}

// view 当前快照的只读视图。
func (rc *ReloadableConfiguration) view() *configuration {
	return &configuration{data: rc.store.Load()}
}

func (rc *ReloadableConfiguration) Get(key string) string {
	return rc.view().Get(key)
}

func (rc *ReloadableConfiguration) GetWithDefault(key, defaultValue string) string {
	return rc.view().GetWithDefault(key, defaultValue)
}

func (rc *ReloadableConfiguration) GetInt(key string) (int, error) {
	return rc.view().GetInt(key)
}

func (rc *ReloadableConfiguration) GetBool(key string) (bool, error) {
	return rc.view().GetBool(key)
}

func (rc *ReloadableConfiguration) GetSection(key string) Configuration {
	return rc.view().GetSection(key)
}

func (rc *ReloadableConfiguration) Bind(key string, target any) error {
	return rc.view().Bind(key, target)
}

func (rc *ReloadableConfiguration) GetAll() map[string]any {
	return rc.view().GetAll()
}

// ---- 文件源监听：基于修改时间的轮询 ----

const filePollInterval = 2 * time.Second

// filePoller 文件源共享的轮询状态。
type filePoller struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

func (p *filePoller) start(ctx context.Context, path string, onChange func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	var lastMod time.Time
	if info, err := os.Stat(path); err == nil {
		lastMod = info.ModTime()
	}

	go func() {
		ticker := time.NewTicker(filePollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				if info.ModTime().After(lastMod) {
					lastMod = info.ModTime()
					onChange()
				}
			}
		}
	}()
	return nil
}

func (p *filePoller) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// StartWatch 监听 JSON 文件变更。
func (s *JsonFileSource) StartWatch(ctx context.Context, onChange func()) error {
	return s.poller.start(ctx, s.Path, onChange)
}

// StopWatch 停止监听。
func (s *JsonFileSource) StopWatch() {
	s.poller.stop()
}

// StartWatch 监听 YAML 文件变更。
func (s *YamlFileSource) StartWatch(ctx context.Context, onChange func()) error {
	return s.poller.start(ctx, s.Path, onChange)
}

// StopWatch 停止监听。
func (s *YamlFileSource) StopWatch() {
	s.poller.stop()
}

// ---- etcd 源监听：原生 Watch ----

// StartWatch 通过 etcd Watch 监听前缀下的键变更。
func (s *EtcdSource) StartWatch(ctx context.Context, onChange func()) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watchClient != nil {
		return nil
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   s.Options.Endpoints,
		Username:    s.Options.Username,
		Password:    s.Options.Password,
		DialTimeout: s.Options.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create etcd watch client: %w", err)
	}
	s.watchClient = cli

	prefix := s.Options.Prefix
	if prefix == "" {
		prefix = "/"
	}

	go func() {
		ch := cli.Watch(ctx, prefix, clientv3.WithPrefix())
		for resp := range ch {
			if resp.Err() != nil {
				continue
			}
			if len(resp.Events) > 0 {
				onChange()
			}
		}
	}()
	return nil
}

// StopWatch 关闭监听客户端。
func (s *EtcdSource) StopWatch() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watchClient != nil {
		s.watchClient.Close()
		s.watchClient = nil
	}
}

// valueByPath 从快照数据中按路径取值，路径切分走全局缓存。
func valueByPath(data map[string]any, path string) any {
	if path == "" {
		return data
	}
	parts := globalPathCache.GetPathSegments(strings.TrimSpace(path))
	current := any(data)
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}
