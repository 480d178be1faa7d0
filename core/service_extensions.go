package core

import (
	"reflect"

	"github.com/gocrud/container/di"
)

// AddSingleton 将接口 T 绑定到实现 impl，并注册为单例
// impl 可以是实例，也可以是构造函数
//
// 示例:
//
//	core.AddSingleton[IService](services, NewServiceImpl)
func AddSingleton[T any](s *ServiceCollection, impl any) {
	s.addBinding(di.TypeOf[T](), impl, di.ScopeSingleton)
}

// AddPrototype 将接口 T 绑定到实现 impl，每次解析创建新实例
// impl 必须是构造函数
//
// 示例:
//
//	core.AddPrototype[IWorker](services, NewWorker)
func AddPrototype[T any](s *ServiceCollection, impl any) {
	s.addBinding(di.TypeOf[T](), impl, di.ScopePrototype)
}

// AddScoped 将接口 T 绑定到实现 impl，并注册到命名作用域
// 作用域需要事先通过 Container.RegisterScope 登记
func AddScoped[T any](s *ServiceCollection, impl any, scope string) {
	s.addBinding(di.TypeOf[T](), impl, scope)
}

// addBinding 按目标类型登记定义。实例只能登记为单例。
func (s *ServiceCollection) addBinding(target reflect.Type, impl any, scope string) {
	name := target.String()

	if t := reflect.TypeOf(impl); t != nil && t.Kind() == reflect.Func {
		def := di.NewDefinition(name,
			di.WithReflectType(target),
			di.WithScope(scope),
			di.WithConstructor(impl),
		)
		if err := s.container.Register(def); err != nil {
			s.fail(name, err)
		}
		return
	}

	if scope != di.ScopeSingleton {
		def := di.NewDefinition(name,
			di.WithReflectType(target),
			di.WithScope(scope),
		)
		value := impl
		def.Supplier = func() (any, error) { return value, nil }
		if err := s.container.Register(def); err != nil {
			s.fail(name, err)
		}
		return
	}

	if err := s.container.RegisterValue(name, impl); err != nil {
		s.fail(name, err)
	}
}
