package di

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
)

// dependencyResolver 解析单个注入点：按名、按类型、集合、惰性 provider。
type dependencyResolver struct {
	c *Container
}

// resolve 解析 desc 描述的依赖。requesting 是正在创建的服务名（可为空），
// 用于登记依赖边。返回值保证可赋给 desc.Type（nil 表示可选依赖缺失）。
func (r *dependencyResolver) resolve(desc Descriptor, requesting string, rctx *resolveContext) (any, error) {
	// 惰性 provider：注入闭包，真正的解析推迟到调用时
	if elem, withErr, ok := providerSignature(desc.Type); ok {
		return r.makeProvider(desc, elem, withErr, requesting, rctx), nil
	}

	// 按名提示
	if desc.Name != "" {
		return r.resolveByName(desc, requesting, rctx)
	}

	switch desc.Type.Kind() {
	case reflect.Slice:
		return r.resolveSlice(desc, requesting, rctx)
	case reflect.Map:
		if desc.Type.Key().Kind() == reflect.String {
			return r.resolveMap(desc, requesting, rctx)
		}
	}

	return r.resolveByType(desc, requesting, rctx)
}

// makeProvider 构造 func() T / func() (T, error) 形态的惰性解析闭包。
// origin 是注入该 provider 时所在的解析上下文：若闭包在发起创建还没退栈时
// 就被调用（比如宿主的 Init 里），嵌套解析必须继承创建锁的持有状态——
// 创建锁不可重入，新开上下文再去加锁会死锁。退栈之后 origin 的锁标记
// 已复位，闭包照常走全新的解析路径。
func (r *dependencyResolver) makeProvider(desc Descriptor, elem reflect.Type, withErr bool, requesting string, origin *resolveContext) any {
	inner := Descriptor{Type: elem, Name: desc.Name, Required: true, Point: desc.Point}
	fn := reflect.MakeFunc(desc.Type, func([]reflect.Value) []reflect.Value {
		rctx := newResolveContext()
		if origin != nil && origin.registryLocked {
			rctx.registryLocked = true
			rctx.chain = append(rctx.chain, origin.chain...)
		}
		v, err := r.resolve(inner, "", rctx)
		out := make([]reflect.Value, 0, 2)
		rv := reflect.Zero(elem)
		if v != nil {
			rv = reflect.ValueOf(v)
		}
		out = append(out, rv)
		if withErr {
			ev := reflect.Zero(errorType)
			if err != nil {
				ev = reflect.ValueOf(err)
			}
			out = append(out, ev)
		} else if err != nil {
			panic(err)
		}
		return out
	})
	return fn.Interface()
}

func (r *dependencyResolver) resolveByName(desc Descriptor, requesting string, rctx *resolveContext) (any, error) {
	obj, err := r.c.doGet(desc.Name, nil, rctx)
	if err != nil {
		if !desc.Required && isNotFound(err) {
			return nil, nil
		}
		return nil, &UnsatisfiedDependencyError{Name: requesting, InjectionPoint: desc.String(), Cause: err}
	}
	if obj != nil && !typeMatches(reflect.TypeOf(obj), desc.Type) {
		return nil, &UnsatisfiedDependencyError{
			Name:           requesting,
			InjectionPoint: desc.String(),
			Cause:          fmt.Errorf("service %q is of type %T, not assignable to %s", desc.Name, obj, desc.Type),
		}
	}
	r.recordDependency(desc.Name, requesting, rctx)
	return obj, nil
}

func (r *dependencyResolver) resolveByType(desc Descriptor, requesting string, rctx *resolveContext) (any, error) {
	candidates := r.candidatesFor(desc.Type)
	switch len(candidates) {
	case 0:
		if !desc.Required {
			return nil, nil
		}
		return nil, &UnsatisfiedDependencyError{
			Name:           requesting,
			InjectionPoint: desc.String(),
			Cause:          &NotFoundError{Type: desc.Type.String()},
		}
	case 1:
		r.recordDependency(candidates[0], requesting, rctx)
		obj, err := r.c.doGet(candidates[0], nil, rctx)
		if err != nil {
			return nil, &UnsatisfiedDependencyError{Name: requesting, InjectionPoint: desc.String(), Cause: err}
		}
		return obj, nil
	}

	chosen, err := r.disambiguate(desc, candidates)
	if err != nil {
		return nil, err
	}
	r.recordDependency(chosen, requesting, rctx)
	obj, err := r.c.doGet(chosen, nil, rctx)
	if err != nil {
		return nil, &UnsatisfiedDependencyError{Name: requesting, InjectionPoint: desc.String(), Cause: err}
	}
	return obj, nil
}

// disambiguate 多候选仲裁：Primary 定义优先，其次名字与注入点字段名一致，
// 严格模式下仍然多选即失败，宽松模式取注册顺序最先者。
func (r *dependencyResolver) disambiguate(desc Descriptor, candidates []string) (string, error) {
	var primaries []string
	for _, name := range candidates {
		if def, err := r.c.store.GetMerged(name); err == nil && def.Primary {
			primaries = append(primaries, name)
		}
	}
	if len(primaries) == 1 {
		return primaries[0], nil
	}
	if len(primaries) > 1 {
		return "", &AmbiguousResolutionError{Name: desc.String(), Candidates: primaries}
	}

	if desc.Point != "" {
		for _, name := range candidates {
			if name == desc.Point {
				return name, nil
			}
		}
	}

	if r.c.strict {
		return "", &AmbiguousResolutionError{Name: desc.String(), Candidates: candidates}
	}
	return candidates[0], nil
}

// resolveSlice 集合注入：全部按元素类型匹配的候选，注册顺序。
// 空集合合法，返回空切片而不是报错。
func (r *dependencyResolver) resolveSlice(desc Descriptor, requesting string, rctx *resolveContext) (any, error) {
	elem := desc.Type.Elem()

	// []func() T 是 provider 集合
	if pElem, withErr, ok := providerSignature(elem); ok {
		names := r.candidatesFor(pElem)
		out := reflect.MakeSlice(desc.Type, 0, len(names))
		for _, name := range names {
			inner := Descriptor{Type: elem, Name: name, Required: true, Point: desc.Point}
			out = reflect.Append(out, reflect.ValueOf(r.makeProvider(inner, pElem, withErr, requesting, rctx)))
		}
		return out.Interface(), nil
	}

	names := r.candidatesFor(elem)
	out := reflect.MakeSlice(desc.Type, 0, len(names))
	for _, name := range names {
		r.recordDependency(name, requesting, rctx)
		obj, err := r.c.doGet(name, nil, rctx)
		if err != nil {
			return nil, &UnsatisfiedDependencyError{Name: requesting, InjectionPoint: desc.String(), Cause: err}
		}
		out = reflect.Append(out, reflect.ValueOf(obj))
	}
	return out.Interface(), nil
}

// resolveMap map[string]T 注入：服务名到实例。
func (r *dependencyResolver) resolveMap(desc Descriptor, requesting string, rctx *resolveContext) (any, error) {
	elem := desc.Type.Elem()
	names := r.candidatesFor(elem)
	out := reflect.MakeMapWithSize(desc.Type, len(names))
	for _, name := range names {
		r.recordDependency(name, requesting, rctx)
		obj, err := r.c.doGet(name, nil, rctx)
		if err != nil {
			return nil, &UnsatisfiedDependencyError{Name: requesting, InjectionPoint: desc.String(), Cause: err}
		}
		out.SetMapIndex(reflect.ValueOf(name), reflect.ValueOf(obj))
	}
	return out.Interface(), nil
}

// candidatesFor 汇集类型匹配的候选名：定义仓库 + 手工登记的单例值。
func (r *dependencyResolver) candidatesFor(target reflect.Type) []string {
	names := r.c.store.NamesForType(target)

	manual := r.c.manualNamesForType(target)
	if len(manual) > 0 {
		sort.Strings(manual)
		seen := make(map[string]struct{}, len(names))
		for _, n := range names {
			seen[n] = struct{}{}
		}
		for _, n := range manual {
			if _, dup := seen[n]; !dup {
				names = append(names, n)
			}
		}
	}
	return names
}

func (r *dependencyResolver) recordDependency(name, requesting string, rctx *resolveContext) {
	if requesting == "" || name == requesting {
		return
	}
	r.c.registry.registerDependent(name, requesting, rctx.registryLocked)
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
