package di

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/gocrud/container/logging"
)

// Container 受管对象容器：定义仓库 + 单例注册表 + 创建管线的门面。
// 通过 New 显式创建、Close 显式关闭，不依赖任何包级状态。
type Container struct {
	store    *DefinitionStore
	registry *SingletonRegistry

	scopesMu sync.RWMutex
	scopes   map[string]ScopeProvider

	processorsMu sync.RWMutex
	processors   []PostProcessor

	converter Converter
	logger    logging.Logger

	deps  *dependencyResolver
	ctors *constructorResolver

	// allowCircularReferences 允许通过早期引用化解属性级循环依赖。
	allowCircularReferences bool
	// allowRawInjection 裸引用一致性检查的策略开关：
	// 允许时，早期引用在最终对象被包装后仍可保留在依赖者手中。
	allowRawInjection bool
	// strict 严格解析：多个同权重候选视为错误而不是静默取第一个。
	strict bool

	manualMu sync.RWMutex
	manual   map[string]reflect.Type
}

// ContainerOption 配置容器。
type ContainerOption func(*Container)

// WithLogger 设置容器日志。
func WithLogger(logger logging.Logger) ContainerOption {
	return func(c *Container) { c.logger = logger }
}

// WithConverter 替换类型转换服务。
func WithConverter(converter Converter) ContainerOption {
	return func(c *Container) { c.converter = converter }
}

// WithStrictResolution 打开严格解析模式。
func WithStrictResolution() ContainerOption {
	return func(c *Container) { c.strict = true }
}

// WithoutCircularReferences 禁用早期引用，任何循环依赖都按失败处理。
func WithoutCircularReferences() ContainerOption {
	return func(c *Container) { c.allowCircularReferences = false }
}

// WithRawInjectionAllowed 关闭裸引用一致性检查。
func WithRawInjectionAllowed() ContainerOption {
	return func(c *Container) { c.allowRawInjection = true }
}

// New 创建容器。
func New(opts ...ContainerOption) *Container {
	c := &Container{
		store:                   NewDefinitionStore(),
		scopes:                  make(map[string]ScopeProvider),
		converter:               NewDefaultConverter(),
		logger:                  logging.Nop(),
		allowCircularReferences: true,
		manual:                  make(map[string]reflect.Type),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry = NewSingletonRegistry(c.logger)
	c.deps = &dependencyResolver{c: c}
	c.ctors = &constructorResolver{c: c}
	return c
}

// Store 返回定义仓库。
func (c *Container) Store() *DefinitionStore { return c.store }

// Registry 返回单例注册表。
func (c *Container) Registry() *SingletonRegistry { return c.registry }

// Logger 返回容器日志。
func (c *Container) Logger() logging.Logger { return c.logger }

// Register 注册服务定义。
func (c *Container) Register(def *ServiceDefinition) error {
	return c.store.Register(def)
}

// RegisterAlias 注册别名。
func (c *Container) RegisterAlias(alias, name string) error {
	return c.store.RegisterAlias(alias, name)
}

// RegisterValue 登记一个现成实例为单例（值注册）。
// 实例参与按类型解析；销毁回调可用 RegisterValueWithDestroy 附带。
func (c *Container) RegisterValue(name string, value any) error {
	if value == nil {
		return &DefinitionError{Name: name, Reason: "value must not be nil"}
	}
	if err := c.registry.RegisterSingleton(name, value); err != nil {
		return err
	}
	c.manualMu.Lock()
	c.manual[name] = reflect.TypeOf(value)
	c.manualMu.Unlock()
	return nil
}

// RegisterValueWithDestroy 值注册并附带销毁回调。
func (c *Container) RegisterValueWithDestroy(name string, value any, destroy func() error) error {
	if err := c.RegisterValue(name, value); err != nil {
		return err
	}
	c.registry.RegisterDisposable(name, DisposableFunc(destroy))
	return nil
}

// manualNamesForType 返回类型匹配的手工登记单例名。
func (c *Container) manualNamesForType(target reflect.Type) []string {
	c.manualMu.RLock()
	defer c.manualMu.RUnlock()
	var out []string
	for name, t := range c.manual {
		if typeMatches(t, target) {
			out = append(out, name)
		}
	}
	return out
}

// AddPostProcessor 注册后置处理器，按 Ordered 稳定排序。
func (c *Container) AddPostProcessor(p PostProcessor) {
	c.processorsMu.Lock()
	defer c.processorsMu.Unlock()
	c.processors = append(c.processors, p)
	sortProcessors(c.processors)
}

func (c *Container) postProcessors() []PostProcessor {
	c.processorsMu.RLock()
	defer c.processorsMu.RUnlock()
	return append([]PostProcessor(nil), c.processors...)
}

// RegisterScope 注册自定义作用域。singleton/prototype 不可覆盖。
func (c *Container) RegisterScope(name string, provider ScopeProvider) error {
	if name == ScopeSingleton || name == ScopePrototype {
		return fmt.Errorf("di: scope %q is built-in and cannot be replaced", name)
	}
	c.scopesMu.Lock()
	defer c.scopesMu.Unlock()
	c.scopes[name] = provider
	return nil
}

// Contains 报告名字是否可解析（定义或手工单例）。
func (c *Container) Contains(name string) bool {
	if c.store.Contains(name) {
		return true
	}
	return c.registry.Contains(name)
}

// Get 按名解析实例。
func (c *Container) Get(name string) (any, error) {
	return c.doGet(name, nil, newResolveContext())
}

// GetWithArgs 按名解析并提供显式构造参数（跳过参数匹配，要求精确元数）。
// 只对原型等非缓存作用域有意义；已缓存的单例直接返回缓存。
func (c *Container) GetWithArgs(name string, args ...any) (any, error) {
	return c.doGet(name, args, newResolveContext())
}

// GetByType 按类型解析唯一实例。
func (c *Container) GetByType(typ reflect.Type) (any, error) {
	return c.deps.resolve(Descriptor{Type: typ, Required: true}, "", newResolveContext())
}

// GetAll 返回全部类型匹配的实例，键为服务名。
func (c *Container) GetAll(typ reflect.Type) (map[string]any, error) {
	rctx := newResolveContext()
	names := c.deps.candidatesFor(typ)
	out := make(map[string]any, len(names))
	for _, name := range names {
		obj, err := c.doGet(name, nil, rctx)
		if err != nil {
			return nil, err
		}
		out[name] = obj
	}
	return out, nil
}

// Build 预实例化全部非延迟的单例定义，按注册顺序。
// 创建过程中的递归解析保证依赖先于依赖者完成。
func (c *Container) Build() error {
	for _, name := range c.store.Names() {
		def, err := c.store.GetMerged(name)
		if err != nil {
			return err
		}
		if def.Abstract || !def.IsSingleton() || def.LazyInit {
			continue
		}
		if _, err := c.Get(name); err != nil {
			return err
		}
	}
	c.logger.Debug("container built",
		logging.Field{Key: "definitions", Value: len(c.store.Names())})
	return nil
}

// MarkStale 失效某定义的各级缓存（合并结果与构造解析）。
func (c *Container) MarkStale(name string) {
	c.store.MarkStale(name)
}

// Close 关闭容器：销毁全部单例（依赖反序）。幂等。
func (c *Container) Close() {
	c.registry.DestroyAll()
}

// resolveContext 单次解析调用栈的状态：
// 注册表创建锁是否已被本栈持有，以及非单例作用域的"创建中"集合
// （Go 没有线程局部存储，在调用链上显式携带）。
type resolveContext struct {
	registryLocked bool
	inFlight       map[string]struct{}
	chain          []string
}

func newResolveContext() *resolveContext {
	return &resolveContext{inFlight: make(map[string]struct{})}
}

// enter 标记非单例实例进入创建；重入即原型自引用，直接失败，
// 非单例没有缓存可供早期引用。
func (rc *resolveContext) enter(name string) error {
	if _, ok := rc.inFlight[name]; ok {
		return &CurrentlyInCreationError{Name: name, Chain: append([]string(nil), rc.chain...)}
	}
	rc.inFlight[name] = struct{}{}
	return nil
}

func (rc *resolveContext) leave(name string) {
	delete(rc.inFlight, name)
}

// doGet 解析的主入口。
func (c *Container) doGet(name string, explicitArgs []any, rctx *resolveContext) (any, error) {
	name = c.store.canonical(name)

	// 快路径：完成品，或构造中的早期引用（化解循环的关键入口）
	if explicitArgs == nil {
		var early any
		if rctx.registryLocked {
			early = c.registry.peekEarlyLocked(name, true)
		} else {
			early = c.registry.PeekEarly(name, true)
		}
		if early != nil {
			return early, nil
		}
	}

	def, err := c.store.GetMerged(name)
	if err != nil {
		return nil, err
	}
	if def.Abstract {
		return nil, &DefinitionError{Name: name, Reason: "abstract definition cannot be instantiated"}
	}

	rctx.chain = append(rctx.chain, name)
	defer func() { rctx.chain = rctx.chain[:len(rctx.chain)-1] }()

	// 显式前置依赖
	for _, dep := range def.DependsOn {
		if c.registry.isDependent(name, dep, rctx.registryLocked) {
			return nil, &DefinitionError{
				Name:   name,
				Reason: fmt.Sprintf("circular depends-on relationship with %q", dep),
			}
		}
		c.registry.registerDependent(dep, name, rctx.registryLocked)
		if _, err := c.doGet(dep, nil, rctx); err != nil {
			return nil, newCreationError(name, "", fmt.Errorf("depends-on %q failed: %w", dep, err))
		}
	}

	switch def.scopeName() {
	case ScopeSingleton:
		factory := func() (any, error) {
			return c.createInstance(name, def, explicitArgs, rctx)
		}
		if rctx.registryLocked {
			obj, err := c.registry.getOrCreateLocked(name, factory)
			return obj, c.enrichCircularError(err, rctx)
		}
		rctx.registryLocked = true
		obj, err := c.registry.GetOrCreate(name, factory)
		rctx.registryLocked = false
		return obj, c.enrichCircularError(err, rctx)

	case ScopePrototype:
		if err := rctx.enter(name); err != nil {
			return nil, err
		}
		defer rctx.leave(name)
		return c.createInstance(name, def, explicitArgs, rctx)

	default:
		c.scopesMu.RLock()
		provider, ok := c.scopes[def.scopeName()]
		c.scopesMu.RUnlock()
		if !ok {
			return nil, &DefinitionError{Name: name, Reason: fmt.Sprintf("unknown scope %q", def.scopeName())}
		}
		if err := rctx.enter(name); err != nil {
			return nil, err
		}
		defer rctx.leave(name)
		return provider.Get(name, func() (any, error) {
			return c.createInstance(name, def, explicitArgs, rctx)
		})
	}
}

// enrichCircularError 给循环构造错误补上完整依赖链。
func (c *Container) enrichCircularError(err error, rctx *resolveContext) error {
	if err == nil {
		return nil
	}
	var cic *CurrentlyInCreationError
	if errors.As(err, &cic) && len(cic.Chain) == 0 {
		cic.Chain = append([]string(nil), rctx.chain...)
	}
	return err
}
