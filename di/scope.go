package di

import "sync"

// ScopeProvider 自定义作用域契约。
// 容器只负责把工厂交给作用域，实例的存续与销毁由作用域自理。
type ScopeProvider interface {
	// Get 返回作用域内的实例，缺失时调用 factory 创建。
	Get(name string, factory func() (any, error)) (any, error)
	// Remove 移除并返回实例。
	Remove(name string) (any, bool)
	// RegisterDestructionCallback 登记实例的销毁回调，作用域结束时执行。
	RegisterDestructionCallback(name string, callback func())
}

// SimpleScope 内存作用域：请求级、会话级等短生命周期的通用实现。
// Close 时按登记的反序执行销毁回调。
type SimpleScope struct {
	mu        sync.Mutex
	instances map[string]any
	order     []string
	callbacks map[string]func()
}

// NewSimpleScope 创建空作用域。
func NewSimpleScope() *SimpleScope {
	return &SimpleScope{
		instances: make(map[string]any),
		callbacks: make(map[string]func()),
	}
}

func (s *SimpleScope) Get(name string, factory func() (any, error)) (any, error) {
	s.mu.Lock()
	if v, ok := s.instances[name]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	// 工厂调用在锁外：作用域实例的创建可能递归进入容器
	v, err := factory()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 并发创建时先到者胜
	if existing, ok := s.instances[name]; ok {
		return existing, nil
	}
	s.instances[name] = v
	s.order = append(s.order, name)
	return v, nil
}

func (s *SimpleScope) Remove(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.instances[name]
	if !ok {
		return nil, false
	}
	delete(s.instances, name)
	delete(s.callbacks, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return v, true
}

func (s *SimpleScope) RegisterDestructionCallback(name string, callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[name] = callback
}

// Close 结束作用域：反序执行销毁回调并清空实例。
func (s *SimpleScope) Close() {
	s.mu.Lock()
	order := append([]string(nil), s.order...)
	callbacks := s.callbacks
	s.instances = make(map[string]any)
	s.callbacks = make(map[string]func())
	s.order = nil
	s.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		if cb, ok := callbacks[order[i]]; ok {
			cb()
		}
	}
}
