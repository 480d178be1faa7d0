package di

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"unicode"

	"github.com/gocrud/container/logging"
)

// Initializer 属性填充完成后的初始化回调。
// 定义了 InitMethod 且与 Init 同名时只调用一次。
type Initializer interface {
	Init() error
}

// createInstance 创建管线：
//
//	解析类型 -> 实例化前钩子(可短路) -> 实例化 -> 早期暴露(单例+循环允许)
//	-> 属性填充 -> 初始化 -> 初始化后钩子 -> 一致性检查与登记
//
// 任何一步失败都包装为 CreationError 上抛；单例的局部缓存状态由
// 注册表在 getOrCreate 的失败路径上统一清除。
func (c *Container) createInstance(name string, def *ServiceDefinition, explicitArgs []any, rctx *resolveContext) (any, error) {
	// ---- 类型解析 ----
	mbd := def
	typ, dynamic := c.resolveType(def)
	if dynamic {
		// 动态解析出的类型不写回共享定义，克隆一份
		mbd = def.clone()
		mbd.Type = typ
		def.cacheType(typ)
	}

	// ---- 实例化前钩子：给外部后置处理器短路整条管线的机会 ----
	for _, p := range c.postProcessors() {
		h, ok := p.(InstantiationHook)
		if !ok {
			continue
		}
		obj, err := h.BeforeInstantiation(typ, name)
		if err != nil {
			return nil, newCreationError(name, "", err)
		}
		if obj != nil {
			// 短路：直接跳到初始化后钩子
			return c.applyAfterInit(obj, name)
		}
	}

	// ---- 实例化 ----
	raw, err := c.instantiate(name, mbd, explicitArgs, rctx)
	if err != nil {
		return nil, newCreationError(name, "", err)
	}

	// ---- 早期暴露：仅单例、允许循环、且本名正处于创建中 ----
	earlyExposed := mbd.IsSingleton() && c.allowCircularReferences &&
		rctx.registryLocked && c.registry.inCreationLocked(name)
	if earlyExposed {
		c.logger.Debug("eagerly exposing early reference to break potential cycle",
			logging.Field{Key: "service", Value: name})
		c.registry.registerEarlyFactoryLocked(name, func() any {
			return c.earlyReference(raw, name)
		})
	}

	// ---- 属性填充 ----
	if err := c.populate(name, mbd, raw, rctx); err != nil {
		return nil, newCreationError(name, "", err)
	}

	// ---- 初始化 ----
	exposed, err := c.initialize(name, mbd, raw)
	if err != nil {
		return nil, newCreationError(name, "", err)
	}

	// ---- 一致性检查：早期引用已经外泄时，裸引用不得与最终对象分叉 ----
	if earlyExposed {
		early := c.registry.peekEarlyLocked(name, false)
		if early != nil {
			if sameInstance(exposed, raw) {
				// 其他服务拿到的就是最终对象（或其包装），以早期引用为准
				exposed = early
			} else if !c.allowRawInjection {
				var offenders []string
				for _, dep := range c.registry.dependentsOf(name, true) {
					if c.registry.Contains(dep) {
						offenders = append(offenders, dep)
					}
				}
				if len(offenders) > 0 {
					return nil, &InconsistentReferenceError{Name: name, Dependents: offenders}
				}
			}
		}
	}

	// ---- 销毁登记 ----
	c.registerDisposableIfNeeded(name, mbd, exposed, rctx)

	return exposed, nil
}

// resolveType 返回定义的目标类型；dynamic 表示类型是推断而非显式声明的。
func (c *Container) resolveType(def *ServiceDefinition) (reflect.Type, bool) {
	if def.Type != nil {
		return def.Type, false
	}
	if t := def.cachedType(); t != nil {
		return t, true
	}
	if def.FactoryMethod != "" && def.FactoryService != "" {
		if ownerDef, err := c.store.Get(def.FactoryService); err == nil {
			if ot := ownerDef.effectiveType(); ot != nil {
				if m, ok := ot.MethodByName(def.FactoryMethod); ok && m.Type.NumOut() > 0 {
					return m.Type.Out(0), true
				}
			}
		}
		return nil, false
	}
	if len(def.Constructors) > 0 {
		ft := reflect.TypeOf(def.Constructors[0].Fn)
		if ft.Kind() == reflect.Func && ft.NumOut() > 0 {
			return ft.Out(0), true
		}
	}
	return nil, false
}

// instantiate 四种策略，按优先级取其一：
// (a) 零参 Supplier (b) 其他服务上的工厂方法 (c) 构造函数装配 (d) 默认结构体实例化。
func (c *Container) instantiate(name string, def *ServiceDefinition, explicitArgs []any, rctx *resolveContext) (any, error) {
	if def.Supplier != nil {
		return def.Supplier()
	}

	if def.FactoryMethod != "" {
		return c.instantiateFactoryMethod(name, def, explicitArgs, rctx)
	}

	candidates := c.constructorCandidates(def)
	if len(candidates) > 0 {
		return c.ctors.instantiate(name, def, candidates, explicitArgs, rctx)
	}
	if def.AutowireMode == AutowireConstructor {
		return nil, &DefinitionError{Name: name, Reason: "constructor autowiring requires at least one candidate"}
	}

	return c.instantiateDefault(name, def)
}

// instantiateFactoryMethod 解析工厂服务实例并调用其命名方法。
// 参数匹配与打分复用构造解析器。
func (c *Container) instantiateFactoryMethod(name string, def *ServiceDefinition, explicitArgs []any, rctx *resolveContext) (any, error) {
	owner, err := c.doGet(def.FactoryService, nil, rctx)
	if err != nil {
		return nil, fmt.Errorf("resolving factory service %q: %w", def.FactoryService, err)
	}
	c.registry.registerDependent(def.FactoryService, name, rctx.registryLocked)

	m := reflect.ValueOf(owner).MethodByName(def.FactoryMethod)
	if !m.IsValid() {
		return nil, &DefinitionError{
			Name:   name,
			Reason: fmt.Sprintf("factory service %q has no method %q", def.FactoryService, def.FactoryMethod),
		}
	}
	candidate := []Constructor{{Fn: m.Interface()}}
	return c.ctors.instantiate(name, def, candidate, explicitArgs, rctx)
}

// constructorCandidates 钩子限定的候选优先，否则用定义自带的候选。
func (c *Container) constructorCandidates(def *ServiceDefinition) []Constructor {
	typ := def.effectiveType()
	for _, p := range c.postProcessors() {
		if h, ok := p.(ConstructorCandidateProvider); ok {
			if cs := h.Candidates(typ, def.Name); cs != nil {
				return cs
			}
		}
	}
	return def.Constructors
}

// instantiateDefault 默认实例化：reflect.New 结构体（或结构体指针）。
func (c *Container) instantiateDefault(name string, def *ServiceDefinition) (any, error) {
	typ := def.effectiveType()
	if typ == nil {
		return nil, &DefinitionError{Name: name, Reason: "cannot determine target type"}
	}
	switch {
	case typ.Kind() == reflect.Ptr && typ.Elem().Kind() == reflect.Struct:
		return reflect.New(typ.Elem()).Interface(), nil
	case typ.Kind() == reflect.Struct:
		return reflect.New(typ).Elem().Interface(), nil
	default:
		return nil, &DefinitionError{
			Name:   name,
			Reason: fmt.Sprintf("default instantiation requires a struct type, got %s", typ),
		}
	}
}

// earlyReference 对早期引用应用转换钩子（代理提前包装等）。
// 注册表保证每个名字至多兑现一次。
func (c *Container) earlyReference(instance any, name string) any {
	exposed := instance
	for _, p := range c.postProcessors() {
		if h, ok := p.(EarlyReferenceHook); ok {
			exposed = h.EarlyReference(exposed, name)
		}
	}
	return exposed
}

// populate 属性填充：实例化后钩子 -> di 标签/自动装配字段注入
// -> 属性钩子 -> 显式属性值（覆盖语义，类型转换经 Converter）。
func (c *Container) populate(name string, def *ServiceDefinition, instance any, rctx *resolveContext) error {
	for _, p := range c.postProcessors() {
		if h, ok := p.(PostInstantiationHook); ok {
			cont, err := h.AfterInstantiation(instance, name)
			if err != nil {
				return err
			}
			if !cont {
				return nil
			}
		}
	}

	if err := c.injectFields(name, def, instance, rctx); err != nil {
		return err
	}

	props := append([]PropertyValue(nil), def.Properties...)
	for _, p := range c.postProcessors() {
		if h, ok := p.(PropertiesHook); ok {
			var err error
			props, err = h.PostProcessProperties(props, instance, name)
			if err != nil {
				return err
			}
		}
	}

	return c.applyProperties(name, props, instance, rctx)
}

// injectFields 解析 di 标签字段与自动装配字段。
// 标签语义：di:"" 按类型必填；di:"name" 按名；di:"?" 或尾随 ,? / ,optional 可选。
func (c *Container) injectFields(name string, def *ServiceDefinition, instance any, rctx *resolveContext) error {
	v := reflect.ValueOf(instance)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return nil
	}
	sv := v.Elem()
	st := sv.Type()

	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if !field.IsExported() {
			continue
		}

		tag, hasTag := field.Tag.Lookup("di")
		var desc Descriptor
		switch {
		case hasTag:
			depName, optional := parseInjectTag(tag)
			desc = Descriptor{Type: field.Type, Name: depName, Required: !optional, Point: field.Name}
		case def.AutowireMode == AutowireByName:
			if !nillable(field.Type) || !sv.Field(i).IsZero() {
				continue
			}
			depName := lowerCamel(field.Name)
			if !c.Contains(depName) {
				continue
			}
			desc = Descriptor{Type: field.Type, Name: depName, Required: false, Point: field.Name}
		case def.AutowireMode == AutowireByType:
			if !nillable(field.Type) || !sv.Field(i).IsZero() {
				continue
			}
			desc = Descriptor{Type: field.Type, Required: false, Point: field.Name}
		default:
			continue
		}

		val, err := c.deps.resolve(desc, name, rctx)
		if err != nil {
			return err
		}
		if val == nil {
			continue
		}
		sv.Field(i).Set(toValue(val, field.Type))
	}
	return nil
}

// applyProperties 应用显式属性值。
func (c *Container) applyProperties(name string, props []PropertyValue, instance any, rctx *resolveContext) error {
	if len(props) == 0 {
		return nil
	}
	v := reflect.ValueOf(instance)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return &DefinitionError{
			Name:   name,
			Reason: fmt.Sprintf("explicit properties require a struct pointer instance, got %T", instance),
		}
	}
	sv := v.Elem()

	for _, prop := range props {
		field := sv.FieldByName(prop.Name)
		if !field.IsValid() || !field.CanSet() {
			if prop.Optional {
				continue
			}
			return &UnsatisfiedDependencyError{
				Name:           name,
				InjectionPoint: prop.Name,
				Cause:          fmt.Errorf("no settable field %q on %s", prop.Name, sv.Type()),
			}
		}

		var val any
		if ref, ok := prop.Value.(Ref); ok {
			obj, err := c.doGet(ref.Name, nil, rctx)
			if err != nil {
				if prop.Optional {
					continue
				}
				return &UnsatisfiedDependencyError{Name: name, InjectionPoint: prop.Name, Cause: err}
			}
			if obj != nil && !typeMatches(reflect.TypeOf(obj), field.Type()) {
				return &UnsatisfiedDependencyError{
					Name:           name,
					InjectionPoint: prop.Name,
					Cause:          fmt.Errorf("referenced service is %T, not assignable to %s", obj, field.Type()),
				}
			}
			c.registry.registerDependent(ref.Name, name, rctx.registryLocked)
			val = obj
		} else {
			converted, err := c.converter.Convert(prop.Value, field.Type())
			if err != nil {
				if prop.Optional {
					continue
				}
				return &UnsatisfiedDependencyError{Name: name, InjectionPoint: prop.Name, Cause: err}
			}
			val = converted
		}
		field.Set(toValue(val, field.Type()))
	}
	return nil
}

// initialize 初始化阶段：前钩子 -> Initializer 接口 -> 命名初始化方法 -> 后钩子。
// 接口回调与命名方法同名时只执行一次；外部接管的方法跳过。
func (c *Container) initialize(name string, def *ServiceDefinition, instance any) (any, error) {
	exposed := instance

	for _, p := range c.postProcessors() {
		next, err := p.BeforeInit(exposed, name)
		if err != nil {
			return nil, err
		}
		if next != nil {
			exposed = next
		}
	}

	ranInterface := false
	if init, ok := exposed.(Initializer); ok && !def.isExternallyManaged("Init") {
		if err := init.Init(); err != nil {
			return nil, fmt.Errorf("Init callback failed: %w", err)
		}
		ranInterface = true
	}

	if def.InitMethod != "" && !def.isExternallyManaged(def.InitMethod) {
		if !(ranInterface && def.InitMethod == "Init") {
			if err := invokeLifecycleMethod(exposed, def.InitMethod); err != nil {
				return nil, fmt.Errorf("init method %q failed: %w", def.InitMethod, err)
			}
		}
	}

	for _, p := range c.postProcessors() {
		next, err := p.AfterInit(exposed, name)
		if err != nil {
			return nil, err
		}
		if next != nil {
			exposed = next
		}
	}
	return exposed, nil
}

// applyAfterInit 实例化前钩子短路后，仍按契约过一遍初始化后钩子。
func (c *Container) applyAfterInit(instance any, name string) (any, error) {
	exposed := instance
	for _, p := range c.postProcessors() {
		next, err := p.AfterInit(exposed, name)
		if err != nil {
			return nil, newCreationError(name, "", err)
		}
		if next != nil {
			exposed = next
		}
	}
	return exposed, nil
}

// invokeLifecycleMethod 调用 func() 或 func() error 形态的生命周期方法。
func invokeLifecycleMethod(instance any, method string) error {
	m := reflect.ValueOf(instance).MethodByName(method)
	if !m.IsValid() {
		return fmt.Errorf("no method %q on %T", method, instance)
	}
	mt := m.Type()
	if mt.NumIn() != 0 {
		return fmt.Errorf("lifecycle method %q must take no arguments", method)
	}
	results := m.Call(nil)
	if len(results) == 1 && results[0].Type() == errorType && !results[0].IsNil() {
		return results[0].Interface().(error)
	}
	return nil
}

// ---- 销毁 ----

// disposableAdapter 把销毁钩子、DestroyFn、命名销毁方法和 io.Closer
// 归一成一个 Disposable。
type disposableAdapter struct {
	name     string
	instance any
	def      *ServiceDefinition
	hooks    []DestructionHook
}

func (d *disposableAdapter) Destroy() error {
	for _, h := range d.hooks {
		h.BeforeDestruction(d.instance, d.name)
	}
	if d.def.DestroyFn != nil {
		return d.def.DestroyFn(d.instance)
	}
	if d.def.DestroyMethod != "" && !d.def.isExternallyManaged(d.def.DestroyMethod) {
		return invokeLifecycleMethod(d.instance, d.def.DestroyMethod)
	}
	if closer, ok := d.instance.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// registerDisposableIfNeeded 为有销毁行为的实例登记销毁回调。
// 单例挂到注册表，自定义作用域挂到作用域提供者；原型归调用方所有。
func (c *Container) registerDisposableIfNeeded(name string, def *ServiceDefinition, instance any, rctx *resolveContext) {
	if def.IsPrototype() {
		return
	}

	var hooks []DestructionHook
	for _, p := range c.postProcessors() {
		if h, ok := p.(DestructionHook); ok && h.RequiresDestruction(instance) {
			hooks = append(hooks, h)
		}
	}

	_, isCloser := instance.(io.Closer)
	if def.DestroyFn == nil && def.DestroyMethod == "" && !isCloser && len(hooks) == 0 {
		return
	}

	adapter := &disposableAdapter{name: name, instance: instance, def: def, hooks: hooks}

	if def.IsSingleton() {
		c.registry.registerDisposable(name, adapter, rctx.registryLocked)
		return
	}

	c.scopesMu.RLock()
	provider, ok := c.scopes[def.scopeName()]
	c.scopesMu.RUnlock()
	if ok {
		logger := c.logger
		provider.RegisterDestructionCallback(name, func() {
			if err := adapter.Destroy(); err != nil {
				logger.Error("scoped destroy callback failed",
					logging.Field{Key: "service", Value: name},
					logging.Field{Key: "error", Value: err.Error()})
			}
		})
	}
}

// ---- 工具 ----

// sameInstance 判断两个实例是否同一对象；指针比指针，其余可比较值比值。
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if va.Kind() == reflect.Ptr && vb.Kind() == reflect.Ptr {
		return va.Pointer() == vb.Pointer()
	}
	if va.Type() != vb.Type() {
		return false
	}
	if va.Comparable() && vb.Comparable() {
		return a == b
	}
	return false
}

// parseInjectTag 解析 di 标签："name,option" 形态，? / optional 表示可选。
func parseInjectTag(tag string) (name string, optional bool) {
	parts := strings.Split(tag, ",")
	name = strings.TrimSpace(parts[0])
	if name == "?" || name == "optional" {
		name = ""
		optional = true
	}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "?" || part == "optional" {
			optional = true
		}
	}
	return name, optional
}

func lowerCamel(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}
