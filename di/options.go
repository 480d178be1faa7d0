package di

import "reflect"

// Option 定义构建选项。
type Option func(*ServiceDefinition)

// NewDefinition 构建服务定义。
//
//	def := di.NewDefinition("userService",
//		di.WithType[*UserService](),
//		di.WithConstructor(NewUserService),
//		di.WithInit("Start"),
//	)
func NewDefinition(name string, opts ...Option) *ServiceDefinition {
	def := &ServiceDefinition{Name: name}
	for _, opt := range opts {
		opt(def)
	}
	return def
}

// WithType 设置目标类型。
func WithType[T any]() Option {
	return func(d *ServiceDefinition) {
		d.Type = reflect.TypeOf((*T)(nil)).Elem()
	}
}

// WithReflectType 设置目标类型（反射形态）。
func WithReflectType(t reflect.Type) Option {
	return func(d *ServiceDefinition) {
		d.Type = t
	}
}

// WithScope 设置作用域名称。
func WithScope(scope string) Option {
	return func(d *ServiceDefinition) {
		d.Scope = scope
	}
}

// WithPrototype 原型作用域。
func WithPrototype() Option {
	return WithScope(ScopePrototype)
}

// WithAbstract 标记为抽象定义，仅作为父定义被继承。
func WithAbstract() Option {
	return func(d *ServiceDefinition) {
		d.Abstract = true
	}
}

// WithParent 设置父定义名。
func WithParent(parent string) Option {
	return func(d *ServiceDefinition) {
		d.Parent = parent
	}
}

// WithLazyInit 延迟初始化，Build 阶段不预实例化。
func WithLazyInit() Option {
	return func(d *ServiceDefinition) {
		d.LazyInit = true
	}
}

// WithPrimary 按类型解析出现多个候选时优先选择本定义。
func WithPrimary() Option {
	return func(d *ServiceDefinition) {
		d.Primary = true
	}
}

// WithDependsOn 声明显式前置依赖。
func WithDependsOn(names ...string) Option {
	return func(d *ServiceDefinition) {
		d.DependsOn = append(d.DependsOn, names...)
	}
}

// WithAutowire 设置属性自动装配模式。
func WithAutowire(mode AutowireMode) Option {
	return func(d *ServiceDefinition) {
		d.AutowireMode = mode
	}
}

// WithSupplier 零参工厂，优先级最高的实例化策略。
func WithSupplier(fn func() (any, error)) Option {
	return func(d *ServiceDefinition) {
		d.Supplier = fn
	}
}

// WithFactoryMethod 通过另一个服务上的方法实例化。
func WithFactoryMethod(service, method string) Option {
	return func(d *ServiceDefinition) {
		d.FactoryService = service
		d.FactoryMethod = method
	}
}

// WithConstructor 追加一个构造函数候选。可多次调用形成候选列表。
func WithConstructor(fn any, paramNames ...string) Option {
	return func(d *ServiceDefinition) {
		d.Constructors = append(d.Constructors, Constructor{Fn: fn, ParamNames: paramNames})
	}
}

// WithConstructorArg 追加一个按顺序匹配的声明参数。
func WithConstructorArg(value any) Option {
	return func(d *ServiceDefinition) {
		d.ConstructorArgs = append(d.ConstructorArgs, GenericArg(value))
	}
}

// WithIndexedArg 追加一个按位置匹配的声明参数。
func WithIndexedArg(index int, value any) Option {
	return func(d *ServiceDefinition) {
		d.ConstructorArgs = append(d.ConstructorArgs, IndexedArg(index, value))
	}
}

// WithNamedArg 追加一个按参数名匹配的声明参数。
// 候选构造函数需要提供 ParamNames 才能按名匹配。
func WithNamedArg(name string, value any) Option {
	return func(d *ServiceDefinition) {
		d.ConstructorArgs = append(d.ConstructorArgs, NamedArg(name, value))
	}
}

// WithArgRef 追加一个引用其他服务的声明参数。
func WithArgRef(serviceName string) Option {
	return WithConstructorArg(RefTo(serviceName))
}

// WithProperty 设置显式属性值。
func WithProperty(field string, value any) Option {
	return func(d *ServiceDefinition) {
		d.Properties = append(d.Properties, PropertyValue{Name: field, Value: value})
	}
}

// WithPropertyRef 设置引用其他服务的属性。
func WithPropertyRef(field, serviceName string) Option {
	return WithProperty(field, RefTo(serviceName))
}

// WithOptionalProperty 设置可选属性：目标字段不存在或解析失败时跳过。
func WithOptionalProperty(field string, value any) Option {
	return func(d *ServiceDefinition) {
		d.Properties = append(d.Properties, PropertyValue{Name: field, Value: value, Optional: true})
	}
}

// WithInit 设置初始化方法名（func() 或 func() error）。
func WithInit(method string) Option {
	return func(d *ServiceDefinition) {
		d.InitMethod = method
	}
}

// WithDestroy 设置销毁方法名。
func WithDestroy(method string) Option {
	return func(d *ServiceDefinition) {
		d.DestroyMethod = method
	}
}

// WithDestroyFn 设置销毁回调，优先于销毁方法。
func WithDestroyFn(fn func(instance any) error) Option {
	return func(d *ServiceDefinition) {
		d.DestroyFn = fn
	}
}

// WithExternallyManaged 标记某个生命周期方法由外部接管，容器不再调用。
func WithExternallyManaged(method string) Option {
	return func(d *ServiceDefinition) {
		d.markExternallyManaged(method)
	}
}
