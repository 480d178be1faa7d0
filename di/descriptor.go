package di

import (
	"fmt"
	"reflect"
)

// Descriptor 描述一个注入点：声明类型、是否必需、限定名提示。
// 每次解析临时创建，归调用栈所有。
type Descriptor struct {
	// Type 注入点声明的类型。
	Type reflect.Type
	// Name 限定名提示，非空时按名解析。
	Name string
	// Required 找不到依赖时报错；否则注入零值。
	Required bool
	// Point 注入点描述，仅用于错误信息（字段名或 "arg 2" 这样的参数位置）。
	Point string
}

func (d Descriptor) String() string {
	if d.Point != "" {
		return fmt.Sprintf("%s (%s)", d.Point, d.Type)
	}
	return d.Type.String()
}

// providerSignature 识别惰性 provider 形态的注入点：
// func() T 或 func() (T, error)。解析时注入一个按需求值的闭包。
// 集合嵌套同样成立：[]func() T 是"provider 的集合"。
func providerSignature(t reflect.Type) (elem reflect.Type, withErr bool, ok bool) {
	if t.Kind() != reflect.Func || t.NumIn() != 0 {
		return nil, false, false
	}
	switch t.NumOut() {
	case 1:
		if t.Out(0) == errorType {
			return nil, false, false
		}
		return t.Out(0), false, true
	case 2:
		if t.Out(1) != errorType {
			return nil, false, false
		}
		return t.Out(0), true, true
	}
	return nil, false, false
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()
