// Package di 实现受管对象的生命周期容器：定义注册、三级单例缓存、
// 构造函数择优、依赖解析、创建管线与有序销毁。
package di

import (
	"fmt"
	"reflect"
	"sort"
)

// TypeOf 返回 T 的反射类型。接口类型返回接口本身而非 nil 指针。
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Register 以 T 为目标类型注册服务，服务名取类型的规范字符串。
func Register[T any](c *Container, opts ...Option) error {
	return RegisterNamed[T](c, defaultName(TypeOf[T]()), opts...)
}

// RegisterNamed 以 T 为目标类型注册命名服务。
func RegisterNamed[T any](c *Container, name string, opts ...Option) error {
	def := NewDefinition(name, opts...)
	if def.Type == nil {
		def.Type = TypeOf[T]()
	}
	return c.Register(def)
}

// Use 把接口 I 绑定到已注册的服务：I 的默认名成为该服务的别名。
// 多实现共存时按 I 的默认名解析即取绑定的那一个。
func Use[I any](c *Container, name string) error {
	return c.RegisterAlias(defaultName(TypeOf[I]()), name)
}

// Provide 把构造函数或实例登记进容器，返回登记的服务类型。
// 构造函数按首个返回值推断服务类型；实例以 Supplier 方式登记为单例，
// 解析时仍走创建管线，di 标签字段照常注入。
func Provide(c *Container, target any, opts ...Option) (reflect.Type, error) {
	if target == nil {
		return nil, fmt.Errorf("di: provide target must not be nil")
	}

	t := reflect.TypeOf(target)
	if t.Kind() == reflect.Func {
		if t.NumOut() == 0 {
			return nil, fmt.Errorf("di: constructor %T must return the service", target)
		}
		def := NewDefinition(t.Out(0).String(), opts...)
		if def.Type == nil {
			def.Type = t.Out(0)
		}
		def.Name = def.Type.String()
		def.Constructors = append(def.Constructors, Constructor{Fn: target})
		return def.Type, c.Register(def)
	}

	def := NewDefinition(t.String(), opts...)
	if def.Type == nil {
		def.Type = t
	}
	def.Name = def.Type.String()
	def.Supplier = func() (any, error) { return target, nil }
	return def.Type, c.Register(def)
}

// Resolve 按类型解析唯一实例。
func Resolve[T any](c *Container) (T, error) {
	var zero T
	obj, err := c.GetByType(TypeOf[T]())
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, &ConversionError{
			Value:  obj,
			Target: TypeOf[T]().String(),
			Reason: fmt.Sprintf("resolved instance is %T", obj),
		}
	}
	return typed, nil
}

// ResolveNamed 按名解析并断言为 T。
func ResolveNamed[T any](c *Container, name string) (T, error) {
	var zero T
	obj, err := c.Get(name)
	if err != nil {
		return zero, err
	}
	typed, ok := obj.(T)
	if !ok {
		return zero, &ConversionError{
			Value:  obj,
			Target: TypeOf[T]().String(),
			Reason: fmt.Sprintf("service %q is %T", name, obj),
		}
	}
	return typed, nil
}

// ResolveAll 返回全部类型匹配的实例，按服务名排序稳定。
func ResolveAll[T any](c *Container) ([]T, error) {
	all, err := c.GetAll(TypeOf[T]())
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]T, 0, len(all))
	for _, name := range names {
		typed, ok := all[name].(T)
		if !ok {
			return nil, &ConversionError{
				Value:  all[name],
				Target: TypeOf[T]().String(),
				Reason: fmt.Sprintf("service %q is %T", name, all[name]),
			}
		}
		out = append(out, typed)
	}
	return out, nil
}

// MustResolve 解析失败时 panic。仅用于启动期必然成功的场景。
func MustResolve[T any](c *Container) T {
	v, err := Resolve[T](c)
	if err != nil {
		panic(err)
	}
	return v
}

// MustResolveNamed 按名解析失败时 panic。
func MustResolveNamed[T any](c *Container, name string) T {
	v, err := ResolveNamed[T](c, name)
	if err != nil {
		panic(err)
	}
	return v
}

// defaultName 类型的默认服务名：包路径限定的类型字符串。
func defaultName(t reflect.Type) string {
	return t.String()
}
