package yamlsource

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/gocrud/container/di"
)

// TypeRegistry 类型注册表：把 YAML 中的类型名映射到 Go 类型与候选构造函数。
// Go 没有运行时类型查找，可用的类型必须在加载定义前显式登记。
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
	ctors map[string][]di.Constructor
}

// NewTypeRegistry 创建类型注册表
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[string]reflect.Type),
		ctors: make(map[string][]di.Constructor),
	}
}

// RegisterType 以名字登记一个类型
func (r *TypeRegistry) RegisterType(name string, t reflect.Type) *TypeRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[name] = t
	return r
}

// RegisterConstructor 为类型名登记一个候选构造函数
// paramNames 可选，供 YAML 中按参数名声明的 args 匹配
func (r *TypeRegistry) RegisterConstructor(typeName string, fn any, paramNames ...string) *TypeRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[typeName] = append(r.ctors[typeName], di.Constructor{Fn: fn, ParamNames: paramNames})

	// 构造函数同时充当类型登记：返回值类型可推断
	if _, ok := r.types[typeName]; !ok {
		t := reflect.TypeOf(fn)
		if t != nil && t.Kind() == reflect.Func && t.NumOut() > 0 {
			r.types[typeName] = t.Out(0)
		}
	}
	return r
}

// Lookup 查找类型名对应的类型
func (r *TypeRegistry) Lookup(name string) (reflect.Type, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("yamlsource: type '%s' is not registered", name)
	}
	return t, nil
}

// Constructors 返回类型名登记的候选构造函数
func (r *TypeRegistry) Constructors(typeName string) []di.Constructor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]di.Constructor(nil), r.ctors[typeName]...)
}

// RegisterType 泛型便捷登记
func RegisterType[T any](r *TypeRegistry, name string) *TypeRegistry {
	return r.RegisterType(name, di.TypeOf[T]())
}
