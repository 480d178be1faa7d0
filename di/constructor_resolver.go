package di

import (
	"fmt"
	"reflect"
	"sort"
)

// 打分常量：精确匹配 0，接口赋值 +1，其他可赋值 +2。
// 原始（未转换）参数列表的得分减去固定折扣后与转换后得分取较小者，
// 可直接赋值的候选总是胜过需要转换的候选。
const (
	weightExact       = 0
	weightInterface   = 1
	weightAssignable  = 2
	rawWeightDiscount = 1024
	weightNoMatch     = int(^uint32(0) >> 1) // 足够大，且做减法不会回绕
)

// constructorResolver 在候选构造函数/工厂方法中确定性地选择一个，
// 并产出具体参数列表。
type constructorResolver struct {
	c *Container
}

// candidate 统一构造函数与工厂方法两种可调用形态。
type callable struct {
	ctor   *Constructor
	fn     reflect.Value
	params []reflect.Type
}

func newCallable(ctor *Constructor) (*callable, error) {
	fn := reflect.ValueOf(ctor.Fn)
	ft := fn.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor candidate is %s, not a func", ft.Kind())
	}
	if ft.IsVariadic() {
		return nil, fmt.Errorf("variadic constructors are not supported")
	}
	if ft.NumOut() == 0 {
		return nil, fmt.Errorf("constructor must return at least one value")
	}
	params := make([]reflect.Type, ft.NumIn())
	for i := range params {
		params[i] = ft.In(i)
	}
	return &callable{ctor: ctor, fn: fn, params: params}, nil
}

// instantiate 运行选择算法并调用选中的候选。
//
//  1. 调用方给了显式参数：跳过匹配，要求参数个数精确一致。
//  2. 定义上有缓存的解析结果：按参数计划直接重建参数（原型反复创建的快路径）。
//  3. 单一候选、零参数、无声明参数：直接调用并缓存。
//  4. 其余情况：候选按参数个数降序，逐个尝试构建参数列表并按
//     类型差异权重打分；单个候选的失败被吞掉（记为被压制的原因），
//     全部失败时浮出最近一次的原因。
func (r *constructorResolver) instantiate(name string, def *ServiceDefinition, candidates []Constructor, explicitArgs []any, rctx *resolveContext) (any, error) {
	if len(candidates) == 0 {
		return nil, &DefinitionError{Name: name, Reason: "no constructor candidates"}
	}

	if explicitArgs != nil {
		return r.instantiateExplicit(name, candidates, explicitArgs)
	}

	if ctor, plan, ok := def.cachedConstructor(); ok && ctor != nil {
		return r.invokeFromPlan(name, ctor, plan, rctx)
	}

	// 快路径：唯一的零参候选
	if len(candidates) == 1 && len(def.ConstructorArgs) == 0 {
		call, err := newCallable(&candidates[0])
		if err != nil {
			return nil, &DefinitionError{Name: name, Reason: err.Error()}
		}
		if len(call.params) == 0 {
			def.cacheConstructor(call.ctor, nil)
			return invoke(call.fn, nil)
		}
	}

	sorted := make([]*Constructor, 0, len(candidates))
	for i := range candidates {
		sorted = append(sorted, &candidates[i])
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return reflect.TypeOf(sorted[i].Fn).NumIn() > reflect.TypeOf(sorted[j].Fn).NumIn()
	})

	minArgs := len(def.ConstructorArgs)

	var (
		best           *callable
		bestArgs       []reflect.Value
		bestPlan       []argSource
		bestWeight     = weightNoMatch
		ambiguous      []string
		lastSuppressed error
	)

	for idx, ctor := range sorted {
		call, err := newCallable(ctor)
		if err != nil {
			lastSuppressed = err
			continue
		}
		if len(call.params) < minArgs {
			continue
		}

		lastResort := best == nil && idx == len(sorted)-1
		args, raw, plan, err := r.buildArgs(name, def, call, lastResort, rctx)
		if err != nil {
			// 候选级失败就地恢复，换下一个候选
			lastSuppressed = err
			continue
		}

		weight := argumentsWeight(call.params, args, raw)
		if weight < bestWeight {
			best, bestArgs, bestPlan, bestWeight = call, args, plan, weight
			ambiguous = nil
		} else if best != nil && weight == bestWeight && r.c.strict {
			if len(ambiguous) == 0 {
				ambiguous = append(ambiguous, describeCallable(best))
			}
			ambiguous = append(ambiguous, describeCallable(call))
		}
	}

	if best == nil {
		cause := lastSuppressed
		if cause == nil {
			cause = fmt.Errorf("no constructor candidate matched %d declared argument(s)", minArgs)
		}
		return nil, &UnsatisfiedDependencyError{Name: name, InjectionPoint: "constructor", Cause: cause}
	}
	if len(ambiguous) > 0 {
		return nil, &AmbiguousResolutionError{Name: name, Candidates: ambiguous}
	}

	def.cacheConstructor(best.ctor, bestPlan)
	return invoke(best.fn, bestArgs)
}

// instantiateExplicit 显式参数：只接受参数个数精确一致的候选，不打分不缓存。
func (r *constructorResolver) instantiateExplicit(name string, candidates []Constructor, explicitArgs []any) (any, error) {
	var lastErr error
	for i := range candidates {
		call, err := newCallable(&candidates[i])
		if err != nil {
			lastErr = err
			continue
		}
		if len(call.params) != len(explicitArgs) {
			continue
		}
		args := make([]reflect.Value, len(call.params))
		ok := true
		for j, pt := range call.params {
			converted, err := r.c.converter.Convert(explicitArgs[j], pt)
			if err != nil {
				lastErr = err
				ok = false
				break
			}
			args[j] = toValue(converted, pt)
		}
		if !ok {
			continue
		}
		return invoke(call.fn, args)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no constructor with arity %d", len(explicitArgs))
	}
	return nil, &UnsatisfiedDependencyError{Name: name, InjectionPoint: "constructor", Cause: lastErr}
}

// buildArgs 为一个候选构建具体参数列表。
// 声明参数的匹配顺序：显式索引 > 参数名 > 下一个未使用的通用值；
// 未匹配的参数经依赖解析器满足（可能递归触发其他单例的创建）。
// lastResort 时，集合形参的解析失败回退为空集合而不是判负。
func (r *constructorResolver) buildArgs(name string, def *ServiceDefinition, call *callable, lastResort bool, rctx *resolveContext) (args []reflect.Value, raw []any, plan []argSource, err error) {
	used := make([]bool, len(def.ConstructorArgs))
	args = make([]reflect.Value, len(call.params))
	raw = make([]any, len(call.params))
	plan = make([]argSource, len(call.params))

	for i, pt := range call.params {
		var pname string
		if i < len(call.ctor.ParamNames) {
			pname = call.ctor.ParamNames[i]
		}

		if av, ok := matchDeclared(def.ConstructorArgs, used, i, pname); ok {
			converted, rawVal, cerr := r.resolveDeclared(name, av.Value, pt, i, rctx)
			if cerr != nil {
				return nil, nil, nil, cerr
			}
			args[i] = toValue(converted, pt)
			raw[i] = rawVal
			plan[i] = argSource{declared: av.Value, hasValue: true}
			continue
		}

		desc := Descriptor{Type: pt, Required: true, Point: fmt.Sprintf("arg %d", i)}
		if pname != "" {
			desc.Point = pname
		}
		obj, derr := r.c.deps.resolve(desc, name, rctx)
		if derr != nil {
			if lastResort {
				if fallback, ok := emptyCollection(pt); ok {
					args[i] = fallback
					raw[i] = fallback.Interface()
					d := desc
					plan[i] = argSource{descriptor: &d}
					continue
				}
			}
			return nil, nil, nil, derr
		}
		args[i] = toValue(obj, pt)
		raw[i] = obj
		d := desc
		plan[i] = argSource{descriptor: &d}
	}
	return args, raw, plan, nil
}

// matchDeclared 依次按索引、参数名、通用值匹配声明参数。
func matchDeclared(declared []ArgValue, used []bool, index int, pname string) (ArgValue, bool) {
	for i, av := range declared {
		if !used[i] && av.Index == index {
			used[i] = true
			return av, true
		}
	}
	if pname != "" {
		for i, av := range declared {
			if !used[i] && av.Index < 0 && av.Name == pname {
				used[i] = true
				return av, true
			}
		}
	}
	for i, av := range declared {
		if !used[i] && av.Index < 0 && av.Name == "" {
			used[i] = true
			return av, true
		}
	}
	return ArgValue{}, false
}

// resolveDeclared 求值一个声明参数：Ref 解服务引用，字面值走类型转换。
// 返回转换后的值与原始值，打分时二者分别计权。
func (r *constructorResolver) resolveDeclared(name string, value any, target reflect.Type, index int, rctx *resolveContext) (converted, raw any, err error) {
	if ref, ok := value.(Ref); ok {
		obj, gerr := r.c.doGet(ref.Name, nil, rctx)
		if gerr != nil {
			return nil, nil, &UnsatisfiedDependencyError{
				Name:           name,
				InjectionPoint: fmt.Sprintf("arg %d (%s)", index, ref),
				Cause:          gerr,
			}
		}
		if obj != nil && !typeMatches(reflect.TypeOf(obj), target) {
			return nil, nil, &UnsatisfiedDependencyError{
				Name:           name,
				InjectionPoint: fmt.Sprintf("arg %d (%s)", index, ref),
				Cause:          fmt.Errorf("referenced service is %T, not assignable to %s", obj, target),
			}
		}
		r.c.registry.registerDependent(ref.Name, name, rctx.registryLocked)
		return obj, obj, nil
	}

	conv, cerr := r.c.converter.Convert(value, target)
	if cerr != nil {
		return nil, nil, &UnsatisfiedDependencyError{
			Name:           name,
			InjectionPoint: fmt.Sprintf("arg %d", index),
			Cause:          cerr,
		}
	}
	return conv, value, nil
}

// invokeFromPlan 按缓存的参数计划重建参数并调用（跳过候选匹配与打分）。
func (r *constructorResolver) invokeFromPlan(name string, ctor *Constructor, plan []argSource, rctx *resolveContext) (any, error) {
	call, err := newCallable(ctor)
	if err != nil {
		return nil, &DefinitionError{Name: name, Reason: err.Error()}
	}
	args := make([]reflect.Value, len(call.params))
	for i, src := range plan {
		pt := call.params[i]
		if src.hasValue {
			converted, _, cerr := r.resolveDeclared(name, src.declared, pt, i, rctx)
			if cerr != nil {
				return nil, cerr
			}
			args[i] = toValue(converted, pt)
			continue
		}
		obj, derr := r.c.deps.resolve(*src.descriptor, name, rctx)
		if derr != nil {
			return nil, derr
		}
		args[i] = toValue(obj, pt)
	}
	return invoke(call.fn, args)
}

// argumentsWeight 取转换后参数与原始参数（减折扣）两种得分的较小者。
func argumentsWeight(params []reflect.Type, args []reflect.Value, raw []any) int {
	converted := make([]any, len(args))
	for i, a := range args {
		if a.IsValid() {
			converted[i] = a.Interface()
		}
	}
	w := typeDiffWeight(params, converted)
	if rw := typeDiffWeight(params, raw); rw != weightNoMatch && rw-rawWeightDiscount < w {
		w = rw - rawWeightDiscount
	}
	return w
}

// typeDiffWeight 类型差异权重：精确 0，接口实现 +1，其他可赋值 +2，
// 不可赋值判为不匹配。
func typeDiffWeight(params []reflect.Type, args []any) int {
	weight := 0
	for i, pt := range params {
		a := args[i]
		if a == nil {
			if !nillable(pt) {
				return weightNoMatch
			}
			continue
		}
		at := reflect.TypeOf(a)
		if at == pt {
			continue
		}
		if !typeMatches(at, pt) {
			return weightNoMatch
		}
		if pt.Kind() == reflect.Interface {
			weight += weightInterface
		} else {
			weight += weightAssignable
		}
	}
	return weight
}

// invoke 调用构造函数/工厂，处理 error 尾值约定与 nil 实例。
func invoke(fn reflect.Value, args []reflect.Value) (any, error) {
	results := fn.Call(args)
	if len(results) == 0 {
		return nil, fmt.Errorf("constructor returned no values")
	}
	if len(results) > 1 {
		last := results[len(results)-1]
		if last.Type() == errorType {
			if !last.IsNil() {
				return nil, last.Interface().(error)
			}
		}
	}
	first := results[0]
	if (first.Kind() == reflect.Ptr || first.Kind() == reflect.Interface) && first.IsNil() {
		return nil, fmt.Errorf("constructor returned nil instance")
	}
	return first.Interface(), nil
}

// toValue 把 any 安全地放进目标类型的 reflect.Value（nil 取零值）。
func toValue(v any, target reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(target)
	}
	rv := reflect.ValueOf(v)
	if rv.Type() != target && rv.Type().ConvertibleTo(target) && !typeMatches(rv.Type(), target) {
		return rv.Convert(target)
	}
	return rv
}

// emptyCollection 为切片/map 形参返回空实例。
func emptyCollection(t reflect.Type) (reflect.Value, bool) {
	switch t.Kind() {
	case reflect.Slice:
		return reflect.MakeSlice(t, 0, 0), true
	case reflect.Map:
		return reflect.MakeMap(t), true
	}
	return reflect.Value{}, false
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

func describeCallable(c *callable) string {
	return c.fn.Type().String()
}
