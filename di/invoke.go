package di

import (
	"fmt"
	"reflect"
)

// Invoke 调用函数，参数逐个按类型从容器解析。
// 函数末位的 error 返回值作为调用结果返回，其余返回值丢弃。
func (c *Container) Invoke(fn any) error {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func {
		return fmt.Errorf("di: Invoke requires a func, got %T", fn)
	}
	t := v.Type()
	if t.IsVariadic() {
		return fmt.Errorf("di: Invoke does not support variadic funcs")
	}

	rctx := newResolveContext()
	in := make([]reflect.Value, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		desc := Descriptor{
			Type:     t.In(i),
			Required: true,
			Point:    fmt.Sprintf("argument %d", i),
		}
		val, err := c.deps.resolve(desc, "", rctx)
		if err != nil {
			return err
		}
		in[i] = toValue(val, t.In(i))
	}

	results := v.Call(in)
	if len(results) > 0 {
		last := results[len(results)-1]
		if last.Type() == errorType && !last.IsNil() {
			return last.Interface().(error)
		}
	}
	return nil
}
