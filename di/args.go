package di

import "fmt"

// Ref 对另一个服务的按名引用，可出现在构造参数或属性值中。
type Ref struct {
	Name string
}

// RefTo 构造一个服务引用。
func RefTo(name string) Ref {
	return Ref{Name: name}
}

func (r Ref) String() string {
	return fmt.Sprintf("ref(%s)", r.Name)
}

// ArgValue 声明的构造参数。
// 匹配顺序：显式索引 > 参数名 > 下一个未使用的通用值。
type ArgValue struct {
	// Index 显式参数位置，-1 表示未指定。
	Index int
	// Name 参数名，需要候选构造函数提供 ParamNames 才能匹配。
	Name string
	// Value 字面值或 Ref。
	Value any
}

// GenericArg 创建一个按顺序匹配的通用参数。
func GenericArg(value any) ArgValue {
	return ArgValue{Index: -1, Value: value}
}

// IndexedArg 创建一个按索引匹配的参数。
func IndexedArg(index int, value any) ArgValue {
	return ArgValue{Index: index, Value: value}
}

// NamedArg 创建一个按参数名匹配的参数。
func NamedArg(name string, value any) ArgValue {
	return ArgValue{Index: -1, Name: name, Value: value}
}

// PropertyValue 显式属性值，按导出字段名设置。
type PropertyValue struct {
	Name string
	// Value 字面值或 Ref。
	Value any
	// Optional 解析失败时跳过而不是报错。
	Optional bool
}

// argSource 构造参数的来源计划。缓存在定义上，
// 原型作用域重复创建时按计划直接取值，跳过候选匹配与打分。
type argSource struct {
	// declared 非 nil 时表示来自声明参数的值（可能是 Ref）。
	declared any
	hasValue bool
	// descriptor 需要经依赖解析器满足的注入点。
	descriptor *Descriptor
}
