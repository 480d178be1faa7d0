package di

import (
	"fmt"
	"reflect"
	"sync"
)

// DefinitionStore 持有全部服务定义并负责父子定义合并。
//
// 合并缓存使用与注册表单例创建锁无关的独立互斥量："解析定义"和
// "创建实例"两条路径绝不嵌套持有对方的锁。
type DefinitionStore struct {
	mu          sync.RWMutex
	definitions map[string]*ServiceDefinition
	names       []string // 注册顺序
	aliases     map[string]string

	mergedMu sync.Mutex
	merged   map[string]*ServiceDefinition
}

// NewDefinitionStore 创建空的定义仓库。
func NewDefinitionStore() *DefinitionStore {
	return &DefinitionStore{
		definitions: make(map[string]*ServiceDefinition),
		aliases:     make(map[string]string),
		merged:      make(map[string]*ServiceDefinition),
	}
}

// Register 注册一个定义。重名报错。
func (s *DefinitionStore) Register(def *ServiceDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.definitions[def.Name]; exists {
		return &DefinitionError{Name: def.Name, Reason: "already registered"}
	}
	if _, exists := s.aliases[def.Name]; exists {
		return &DefinitionError{Name: def.Name, Reason: "name already used as an alias"}
	}

	s.definitions[def.Name] = def
	s.names = append(s.names, def.Name)
	return nil
}

// RegisterAlias 为已有定义注册别名。
func (s *DefinitionStore) RegisterAlias(alias, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.definitions[alias]; exists {
		return &DefinitionError{Name: alias, Reason: "alias collides with a definition name"}
	}
	if existing, ok := s.aliases[alias]; ok && existing != name {
		return &DefinitionError{Name: alias, Reason: fmt.Sprintf("alias already bound to %q", existing)}
	}
	s.aliases[alias] = name
	return nil
}

// Remove 移除定义并失效其合并缓存。
func (s *DefinitionStore) Remove(name string) {
	s.mu.Lock()
	if _, ok := s.definitions[name]; ok {
		delete(s.definitions, name)
		for i, n := range s.names {
			if n == name {
				s.names = append(s.names[:i], s.names[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()

	s.MarkStale(name)
}

// canonical 解别名到定义名。
func (s *DefinitionStore) canonical(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := 0
	for {
		next, ok := s.aliases[name]
		if !ok {
			return name
		}
		name = next
		// 别名链上限，防御环
		if seen++; seen > 16 {
			return name
		}
	}
}

// Contains 报告名称（或别名）是否指向一个定义。
func (s *DefinitionStore) Contains(name string) bool {
	name = s.canonical(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.definitions[name]
	return ok
}

// Get 返回原始（未合并）定义。
func (s *DefinitionStore) Get(name string) (*ServiceDefinition, error) {
	name = s.canonical(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.definitions[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return def, nil
}

// Names 返回注册顺序的定义名列表（副本）。
func (s *DefinitionStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.names...)
}

// GetMerged 返回合并后的定义：沿父链自顶向下叠加，结果缓存。
// 父链中的环是非法的。
func (s *DefinitionStore) GetMerged(name string) (*ServiceDefinition, error) {
	name = s.canonical(name)

	s.mergedMu.Lock()
	if m, ok := s.merged[name]; ok {
		s.mergedMu.Unlock()
		return m, nil
	}
	s.mergedMu.Unlock()

	m, err := s.mergeChain(name, map[string]struct{}{})
	if err != nil {
		return nil, err
	}

	s.mergedMu.Lock()
	s.merged[name] = m
	s.mergedMu.Unlock()
	return m, nil
}

func (s *DefinitionStore) mergeChain(name string, visiting map[string]struct{}) (*ServiceDefinition, error) {
	if _, ok := visiting[name]; ok {
		return nil, &DefinitionError{Name: name, Reason: "cycle in parent chain"}
	}
	visiting[name] = struct{}{}

	def, err := s.Get(name)
	if err != nil {
		return nil, err
	}
	if def.Parent == "" {
		return def.clone(), nil
	}

	parent, err := s.mergeChain(s.canonical(def.Parent), visiting)
	if err != nil {
		return nil, fmt.Errorf("di: resolving parent of %q: %w", name, err)
	}
	return merge(parent, def), nil
}

// merge 以父定义为底，叠加子定义已设置的字段。
// 布尔字段继承语义为"或"：父定义声明的行为子定义不会静默撤销。
func merge(parent, child *ServiceDefinition) *ServiceDefinition {
	m := parent.clone()
	m.Name = child.Name
	m.Parent = child.Parent
	m.Abstract = child.Abstract

	if child.Type != nil {
		m.Type = child.Type
	}
	if child.Scope != "" {
		m.Scope = child.Scope
	}
	m.LazyInit = m.LazyInit || child.LazyInit
	m.Primary = m.Primary || child.Primary
	if child.AutowireMode != AutowireNo {
		m.AutowireMode = child.AutowireMode
	}
	if child.Supplier != nil {
		m.Supplier = child.Supplier
	}
	if child.FactoryService != "" {
		m.FactoryService = child.FactoryService
	}
	if child.FactoryMethod != "" {
		m.FactoryMethod = child.FactoryMethod
	}
	if len(child.Constructors) > 0 {
		m.Constructors = append([]Constructor(nil), child.Constructors...)
	}
	if len(child.DependsOn) > 0 {
		m.DependsOn = append([]string(nil), child.DependsOn...)
	}
	if child.InitMethod != "" {
		m.InitMethod = child.InitMethod
	}
	if child.DestroyMethod != "" {
		m.DestroyMethod = child.DestroyMethod
	}
	if child.DestroyFn != nil {
		m.DestroyFn = child.DestroyFn
	}

	// 构造参数：子定义按索引/名称覆盖父定义的同位声明
	m.ConstructorArgs = mergeArgs(m.ConstructorArgs, child.ConstructorArgs)
	// 属性：子定义按属性名覆盖
	m.Properties = mergeProperties(m.Properties, child.Properties)
	return m
}

func mergeArgs(base, overlay []ArgValue) []ArgValue {
	out := append([]ArgValue(nil), base...)
	for _, a := range overlay {
		replaced := false
		for i, b := range out {
			if a.Index >= 0 && b.Index == a.Index {
				out[i] = a
				replaced = true
				break
			}
			if a.Index < 0 && a.Name != "" && b.Name == a.Name {
				out[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, a)
		}
	}
	return out
}

func mergeProperties(base, overlay []PropertyValue) []PropertyValue {
	out := append([]PropertyValue(nil), base...)
	for _, p := range overlay {
		replaced := false
		for i, b := range out {
			if b.Name == p.Name {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}

// MarkStale 失效某个定义的合并缓存与解析缓存。
// 后置处理修改配置后调用；子定义的合并缓存一并清理。
func (s *DefinitionStore) MarkStale(name string) {
	name = s.canonical(name)

	s.mu.RLock()
	if def, ok := s.definitions[name]; ok {
		def.markStale()
	}
	s.mu.RUnlock()

	s.mergedMu.Lock()
	delete(s.merged, name)
	for n := range s.merged {
		if s.inParentChain(n, name) {
			delete(s.merged, n)
		}
	}
	s.mergedMu.Unlock()
}

// ClearMerged 清空全部合并缓存。
func (s *DefinitionStore) ClearMerged() {
	s.mergedMu.Lock()
	s.merged = make(map[string]*ServiceDefinition)
	s.mergedMu.Unlock()
}

// inParentChain 报告 name 的父链中是否出现 ancestor。调用方持有 mergedMu 时
// 只读取 definitions，锁序安全（mu.RLock 在 mergedMu 内层，从不反向）。
func (s *DefinitionStore) inParentChain(name, ancestor string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := 0
	for {
		def, ok := s.definitions[name]
		if !ok || def.Parent == "" {
			return false
		}
		if def.Parent == ancestor {
			return true
		}
		name = def.Parent
		if seen++; seen > 64 {
			return false
		}
	}
}

// NamesForType 返回目标类型可赋值自其定义类型的服务名（注册顺序）。
// 类型未知（仅工厂方法且未解析）的定义不参与匹配。
func (s *DefinitionStore) NamesForType(target reflect.Type) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, name := range s.names {
		def := s.definitions[name]
		t := def.effectiveType()
		if t == nil || def.Abstract {
			continue
		}
		if typeMatches(t, target) {
			out = append(out, name)
		}
	}
	return out
}

// effectiveType 返回定义的已知类型：显式类型，或已缓存的解析类型，
// 或从构造函数 / Supplier 返回值推断的类型。
func (d *ServiceDefinition) effectiveType() reflect.Type {
	if d.Type != nil {
		return d.Type
	}
	if t := d.cachedType(); t != nil {
		return t
	}
	if len(d.Constructors) > 0 {
		ft := reflect.TypeOf(d.Constructors[0].Fn)
		if ft != nil && ft.Kind() == reflect.Func && ft.NumOut() > 0 {
			return ft.Out(0)
		}
	}
	return nil
}

// typeMatches 报告 instanceType 的实例能否赋给 target 类型的注入点。
func typeMatches(instanceType, target reflect.Type) bool {
	if instanceType == target {
		return true
	}
	if target.Kind() == reflect.Interface {
		return instanceType.Implements(target)
	}
	return instanceType.AssignableTo(target)
}
