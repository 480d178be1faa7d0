package di

import (
	"fmt"
	"sync"

	"github.com/gocrud/container/logging"
)

// Disposable 容器销毁单例时回调。
type Disposable interface {
	Destroy() error
}

// DisposableFunc 函数式 Disposable。
type DisposableFunc func() error

func (f DisposableFunc) Destroy() error { return f() }

// SingletonRegistry 三级缓存单例注册表。
//
// 三级缓存：
//  1. singletons        完成品。读走 sync.Map 的无锁快路径。
//  2. earlyReferences   早期引用：已实例化但尚未填充属性的对象（可能已被包装）。
//  3. factories         待定工厂：零参回调，按需产出早期引用。
//
// 不变式：任意时刻一个名字至多出现在其中一级；晋升方向单调
// factories -> earlyReferences -> singletons，绝不回退。
//
// 创建互斥量 mu 串行化整个构造序列，保证每个名字至多一次并发构造。
// 嵌套创建（工厂回调内递归解析依赖）发生在同一 goroutine 上，必须走
// *Locked 变体——Go 的互斥量不可重入。
type SingletonRegistry struct {
	singletons sync.Map // name -> any

	mu              sync.Mutex
	earlyReferences map[string]any
	factories       map[string]func() any
	inCreation      map[string]struct{}
	registered      []string // 完成品的注册顺序，销毁时反向遍历
	disposables     map[string]Disposable

	// 依赖图（销毁顺序与循环引用一致性检查的唯一事实来源）
	graph *dependencyGraph

	logger logging.Logger
}

// NewSingletonRegistry 创建空注册表。
func NewSingletonRegistry(logger logging.Logger) *SingletonRegistry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SingletonRegistry{
		earlyReferences: make(map[string]any),
		factories:       make(map[string]func() any),
		inCreation:      make(map[string]struct{}),
		disposables:     make(map[string]Disposable),
		graph:           newDependencyGraph(),
		logger:          logger,
	}
}

// Peek 返回已完成的单例，无锁。
func (r *SingletonRegistry) Peek(name string) (any, bool) {
	return r.singletons.Load(name)
}

// Contains 报告名字是否已是完成品。
func (r *SingletonRegistry) Contains(name string) bool {
	_, ok := r.singletons.Load(name)
	return ok
}

// InCreation 报告名字当前是否处于构造中。
func (r *SingletonRegistry) InCreation(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inCreationLocked(name)
}

func (r *SingletonRegistry) inCreationLocked(name string) bool {
	_, ok := r.inCreation[name]
	return ok
}

// GetOrCreate 返回已有单例，否则标记在创建中并调用 factory 构造。
// 成功后晋升到一级缓存并清理二三级；失败则回滚全部局部状态后传播错误。
// 整个序列持有创建锁；factory 内的嵌套解析必须经由已持锁的调用路径
// （容器通过 resolveContext 跟踪锁的持有）。
func (r *SingletonRegistry) GetOrCreate(name string, factory func() (any, error)) (any, error) {
	if v, ok := r.singletons.Load(name); ok {
		return v, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateLocked(name, factory)
}

func (r *SingletonRegistry) getOrCreateLocked(name string, factory func() (any, error)) (obj any, err error) {
	if v, ok := r.singletons.Load(name); ok {
		return v, nil
	}
	if r.inCreationLocked(name) {
		return nil, &CurrentlyInCreationError{Name: name}
	}

	r.inCreation[name] = struct{}{}
	// 工厂 panic 同样要完成回滚，否则在创建标记残留，
	// 该名字此后永远解析成循环创建错误
	defer func() {
		delete(r.inCreation, name)
		if rec := recover(); rec != nil {
			r.evictLocked(name)
			obj = nil
			err = newCreationError(name, "", fmt.Errorf("panic during creation: %v", rec))
		}
	}()

	obj, err = factory()
	if err != nil {
		// 不留下毒化的缓存项
		r.evictLocked(name)
		return nil, err
	}

	r.promoteLocked(name, obj)
	return obj, nil
}

// promoteLocked 晋升到一级缓存并清理低层级。
func (r *SingletonRegistry) promoteLocked(name string, obj any) {
	r.singletons.Store(name, obj)
	delete(r.earlyReferences, name)
	delete(r.factories, name)
	r.registered = append(r.registered, name)
}

// evictLocked 清除某个名字的全部局部状态。
func (r *SingletonRegistry) evictLocked(name string) {
	r.singletons.Delete(name)
	delete(r.earlyReferences, name)
	delete(r.factories, name)
	delete(r.inCreation, name)
	for i, n := range r.registered {
		if n == name {
			r.registered = append(r.registered[:i], r.registered[i+1:]...)
			break
		}
	}
}

// RegisterSingleton 直接登记一个现成实例（值注册）。
func (r *SingletonRegistry) RegisterSingleton(name string, obj any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.singletons.Load(name); ok {
		return &DefinitionError{Name: name, Reason: "singleton instance already registered"}
	}
	r.promoteLocked(name, obj)
	return nil
}

// RegisterEarlyFactory 登记三级缓存的待定工厂。
// 创建管线在原始实例化之后、属性填充之前调用，专供循环引用化解。
// 名字已是完成品时不做任何事。
func (r *SingletonRegistry) RegisterEarlyFactory(name string, thunk func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registerEarlyFactoryLocked(name, thunk)
}

func (r *SingletonRegistry) registerEarlyFactoryLocked(name string, thunk func() any) {
	if _, ok := r.singletons.Load(name); ok {
		return
	}
	r.factories[name] = thunk
}

// PeekEarly 返回完成品；若名字处于创建中且 allowPromotion，
// 兑现待定工厂（三级晋升二级）并返回早期引用。
// 这是 A 构造 B、B 又需要 A 时拿到未完成 A 的机制。
func (r *SingletonRegistry) PeekEarly(name string, allowPromotion bool) any {
	if v, ok := r.singletons.Load(name); ok {
		return v
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peekEarlyLocked(name, allowPromotion)
}

func (r *SingletonRegistry) peekEarlyLocked(name string, allowPromotion bool) any {
	if v, ok := r.singletons.Load(name); ok {
		return v
	}
	if !r.inCreationLocked(name) {
		return nil
	}
	if v, ok := r.earlyReferences[name]; ok {
		return v
	}
	if !allowPromotion {
		return nil
	}
	thunk, ok := r.factories[name]
	if !ok {
		return nil
	}
	obj := thunk()
	r.earlyReferences[name] = obj
	delete(r.factories, name)
	return obj
}

// RegisterDisposable 登记销毁回调，DestroyAll 时按依赖反序执行。
func (r *SingletonRegistry) RegisterDisposable(name string, d Disposable) {
	r.registerDisposable(name, d, false)
}

func (r *SingletonRegistry) registerDisposable(name string, d Disposable, locked bool) {
	if !locked {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	r.disposables[name] = d
}

// RegisterDependent 记录依赖边：dependent 依赖 name。
func (r *SingletonRegistry) RegisterDependent(name, dependent string) {
	r.registerDependent(name, dependent, false)
}

func (r *SingletonRegistry) registerDependent(name, dependent string, locked bool) {
	if !locked {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	r.graph.addEdge(name, dependent)
}

// Dependents 返回依赖 name 的服务名集合。
func (r *SingletonRegistry) Dependents(name string) []string {
	return r.dependentsOf(name, false)
}

func (r *SingletonRegistry) dependentsOf(name string, locked bool) []string {
	if !locked {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	return r.graph.dependents(name)
}

// DependenciesFor 返回 name 依赖的服务名集合。
func (r *SingletonRegistry) DependenciesFor(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.graph.dependencies(name)
}

// IsDependent 报告 dependent 是否（传递地）依赖 name。
// depends-on 声明的环在创建前用它检出。
func (r *SingletonRegistry) IsDependent(name, dependent string) bool {
	return r.isDependent(name, dependent, false)
}

func (r *SingletonRegistry) isDependent(name, dependent string, locked bool) bool {
	if !locked {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	return r.graph.isDependent(name, dependent, nil)
}

// RegisteredNames 返回完成品的注册顺序（副本）。
func (r *SingletonRegistry) RegisteredNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.registered...)
}

// DestroyAll 按严格的依赖反序销毁全部已登记的可销毁单例：
// 先递归销毁依赖者，再销毁自身。单个销毁的失败只记日志，不中断整体。
func (r *SingletonRegistry) DestroyAll() {
	r.mu.Lock()
	names := append([]string(nil), r.registered...)
	r.mu.Unlock()

	// 注册顺序的反向是天然的粗粒度依赖序；图边做精确修正
	for i := len(names) - 1; i >= 0; i-- {
		r.DestroySingleton(names[i])
	}

	r.mu.Lock()
	r.earlyReferences = make(map[string]any)
	r.factories = make(map[string]func() any)
	r.disposables = make(map[string]Disposable)
	r.registered = nil
	r.graph = newDependencyGraph()
	r.mu.Unlock()
}

// DestroySingleton 销毁单个单例及其全部依赖者（依赖者在前）。
func (r *SingletonRegistry) DestroySingleton(name string) {
	r.mu.Lock()
	d, hasDisposable := r.disposables[name]
	delete(r.disposables, name)
	dependents := r.graph.dependents(name)
	r.mu.Unlock()

	// 依赖者先于被依赖者销毁
	for _, dep := range dependents {
		r.DestroySingleton(dep)
	}

	if hasDisposable {
		r.invokeDisposable(name, d)
	}

	r.mu.Lock()
	r.evictLocked(name)
	r.graph.removeNode(name)
	r.mu.Unlock()
}

// invokeDisposable 执行销毁回调；错误与 panic 都吞掉，只记日志，
// 保证图的其余部分继续销毁。
func (r *SingletonRegistry) invokeDisposable(name string, d Disposable) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("destroy callback panicked",
				logging.Field{Key: "service", Value: name},
				logging.Field{Key: "panic", Value: rec})
		}
	}()
	if err := d.Destroy(); err != nil {
		r.logger.Error("destroy callback failed",
			logging.Field{Key: "service", Value: name},
			logging.Field{Key: "error", Value: err.Error()})
	}
}
