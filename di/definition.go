package di

import (
	"fmt"
	"reflect"
	"sync"
)

// 内置作用域名称。除此之外可以通过 Container.RegisterScope 注册自定义作用域。
const (
	// ScopeSingleton 单例：容器生命周期内只创建一次，缓存复用。
	ScopeSingleton = "singleton"
	// ScopePrototype 原型：每次请求创建新实例，不缓存。
	ScopePrototype = "prototype"
)

// AutowireMode 定义属性填充阶段的自动装配模式。
type AutowireMode int

const (
	// AutowireNo 不自动装配，仅处理显式属性与 di 标签字段（默认）。
	AutowireNo AutowireMode = iota
	// AutowireByName 按字段名匹配已注册服务名装配。
	AutowireByName
	// AutowireByType 按字段类型装配。
	AutowireByType
	// AutowireConstructor 构造函数装配：未声明的构造参数通过依赖解析器满足。
	AutowireConstructor
)

// Constructor 一个候选构造函数。
// Go 无法通过反射枚举一个类型的"构造函数"，候选列表由注册方显式提供
// （或由 ConstructorCandidateProvider 钩子限定）。
type Constructor struct {
	// Fn 形如 func(...) T 或 func(...) (T, error) 的函数。
	Fn any
	// ParamNames 可选的参数名列表，用于按名称匹配声明参数。
	// 反射拿不到参数名，需要时必须在此显式提供。
	ParamNames []string
}

// ServiceDefinition 服务定义：描述一个受管对象如何被创建、装配与销毁。
// 定义在配置期创建，生命周期与容器一致。
type ServiceDefinition struct {
	// Name 服务名，容器内唯一。
	Name string
	// Type 目标类型。使用工厂方法时可以为 nil，由方法返回值推断。
	Type reflect.Type
	// Scope 作用域名称，空值视为 ScopeSingleton。
	Scope string
	// Abstract 抽象定义仅作为父定义被继承，不可实例化。
	Abstract bool
	// Parent 父定义名。未设置的字段在使用前从父定义的合并结果继承。
	Parent string
	// LazyInit 延迟初始化：Build 阶段不预实例化。
	LazyInit bool
	// Primary 按类型解析出现多个候选时优先选择。
	Primary bool
	// DependsOn 显式前置依赖，创建本服务前保证它们已创建。
	DependsOn []string
	// AutowireMode 属性自动装配模式。
	AutowireMode AutowireMode

	// Supplier 用户提供的零参工厂，优先级最高的实例化策略。
	Supplier func() (any, error)
	// FactoryService 工厂方法所在的服务名。与 FactoryMethod 搭配使用。
	FactoryService string
	// FactoryMethod 工厂方法名，通过反射在 FactoryService 实例上调用。
	FactoryMethod string
	// Constructors 候选构造函数列表，由构造解析器择优。
	Constructors []Constructor

	// ConstructorArgs 声明的构造参数。
	ConstructorArgs []ArgValue
	// Properties 显式属性值。
	Properties []PropertyValue

	// InitMethod 初始化方法名（func() 或 func() error）。
	InitMethod string
	// DestroyMethod 销毁方法名。
	DestroyMethod string
	// DestroyFn 销毁回调，优先于 DestroyMethod。
	DestroyFn func(instance any) error

	// 解析缓存：摊销重复解析（原型作用域反复创建时跳过候选匹配）。
	// 缓存字段使用独立的锁，与单例创建锁无关，避免锁序反转。
	resolveMu           sync.Mutex
	resolvedType        reflect.Type
	resolvedConstructor *Constructor
	resolvedArgPlan     []argSource
	constructorResolved bool
	stale               bool
	externallyManaged   map[string]struct{}
}

// Validate 校验定义的基本一致性。
func (d *ServiceDefinition) Validate() error {
	if d.Name == "" {
		return &DefinitionError{Name: d.Name, Reason: "service name is required"}
	}
	if d.FactoryMethod != "" && d.FactoryService == "" {
		return &DefinitionError{Name: d.Name, Reason: "factory method requires a factory service"}
	}
	if d.Type == nil && d.Supplier == nil && d.FactoryMethod == "" && len(d.Constructors) == 0 && d.Parent == "" {
		return &DefinitionError{Name: d.Name, Reason: "definition has no type, supplier, factory method or constructor"}
	}
	for _, ctor := range d.Constructors {
		if ctor.Fn == nil || reflect.TypeOf(ctor.Fn).Kind() != reflect.Func {
			return &DefinitionError{Name: d.Name, Reason: fmt.Sprintf("constructor candidate must be a func, got %T", ctor.Fn)}
		}
	}
	return nil
}

// scopeName 返回规范化的作用域名称。
func (d *ServiceDefinition) scopeName() string {
	if d.Scope == "" {
		return ScopeSingleton
	}
	return d.Scope
}

// IsSingleton 报告定义是否为单例作用域。
func (d *ServiceDefinition) IsSingleton() bool {
	return d.scopeName() == ScopeSingleton
}

// IsPrototype 报告定义是否为原型作用域。
func (d *ServiceDefinition) IsPrototype() bool {
	return d.scopeName() == ScopePrototype
}

// clone 复制定义。动态解析出的类型不能写回共享的原始定义（原始定义
// 可能被重新加载），创建管线在这种情况下先克隆再记录。
// 解析缓存不随克隆携带。
func (d *ServiceDefinition) clone() *ServiceDefinition {
	c := &ServiceDefinition{
		Name:           d.Name,
		Type:           d.Type,
		Scope:          d.Scope,
		Abstract:       d.Abstract,
		Parent:         d.Parent,
		LazyInit:       d.LazyInit,
		Primary:        d.Primary,
		AutowireMode:   d.AutowireMode,
		Supplier:       d.Supplier,
		FactoryService: d.FactoryService,
		FactoryMethod:  d.FactoryMethod,
		InitMethod:     d.InitMethod,
		DestroyMethod:  d.DestroyMethod,
		DestroyFn:      d.DestroyFn,
	}
	c.DependsOn = append([]string(nil), d.DependsOn...)
	c.Constructors = append([]Constructor(nil), d.Constructors...)
	c.ConstructorArgs = append([]ArgValue(nil), d.ConstructorArgs...)
	c.Properties = append([]PropertyValue(nil), d.Properties...)
	return c
}

// markExternallyManaged 标记某个生命周期方法由外部管理，初始化阶段跳过。
func (d *ServiceDefinition) markExternallyManaged(method string) {
	d.resolveMu.Lock()
	defer d.resolveMu.Unlock()
	if d.externallyManaged == nil {
		d.externallyManaged = make(map[string]struct{})
	}
	d.externallyManaged[method] = struct{}{}
}

func (d *ServiceDefinition) isExternallyManaged(method string) bool {
	d.resolveMu.Lock()
	defer d.resolveMu.Unlock()
	_, ok := d.externallyManaged[method]
	return ok
}

// markStale 使解析缓存失效。配置被后置处理修改后调用。
func (d *ServiceDefinition) markStale() {
	d.resolveMu.Lock()
	defer d.resolveMu.Unlock()
	d.resolvedType = nil
	d.resolvedConstructor = nil
	d.resolvedArgPlan = nil
	d.constructorResolved = false
	d.stale = true
}

// cachedConstructor 返回已缓存的构造选择，没有则返回 nil。
func (d *ServiceDefinition) cachedConstructor() (*Constructor, []argSource, bool) {
	d.resolveMu.Lock()
	defer d.resolveMu.Unlock()
	if !d.constructorResolved {
		return nil, nil, false
	}
	return d.resolvedConstructor, d.resolvedArgPlan, true
}

// cacheConstructor 记录构造解析结果。
func (d *ServiceDefinition) cacheConstructor(ctor *Constructor, plan []argSource) {
	d.resolveMu.Lock()
	defer d.resolveMu.Unlock()
	d.resolvedConstructor = ctor
	d.resolvedArgPlan = plan
	d.constructorResolved = true
}

func (d *ServiceDefinition) cachedType() reflect.Type {
	d.resolveMu.Lock()
	defer d.resolveMu.Unlock()
	return d.resolvedType
}

func (d *ServiceDefinition) cacheType(t reflect.Type) {
	d.resolveMu.Lock()
	defer d.resolveMu.Unlock()
	d.resolvedType = t
}
