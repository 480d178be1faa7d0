package di

import (
	"reflect"
	"strconv"
	"time"
)

// Converter 类型转换服务。显式属性值与声明构造参数在注入前经由它转换。
// 可通过 WithConverter 替换为自定义实现。
type Converter interface {
	Convert(value any, target reflect.Type) (any, error)
}

// defaultConverter 内置转换：可赋值直通、数值互转、字符串到基本类型。
type defaultConverter struct{}

// NewDefaultConverter 返回内置转换服务。
func NewDefaultConverter() Converter {
	return defaultConverter{}
}

var durationType = reflect.TypeOf(time.Duration(0))

func (defaultConverter) Convert(value any, target reflect.Type) (any, error) {
	if value == nil {
		switch target.Kind() {
		case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(target).Interface(), nil
		}
		return nil, &ConversionError{Value: value, Target: target.String(), Reason: "nil is not assignable"}
	}

	v := reflect.ValueOf(value)
	if typeMatches(v.Type(), target) {
		return value, nil
	}

	// 字符串到基本类型
	if s, ok := value.(string); ok {
		if converted, ok, err := convertString(s, target); ok {
			return converted, err
		}
	}

	// 数值互转等反射可转换的情况
	if v.Type().ConvertibleTo(target) {
		// string <-> 数值这类语义陷阱排除在外
		if !(v.Kind() == reflect.String && isNumeric(target.Kind())) &&
			!(isNumeric(v.Kind()) && target.Kind() == reflect.String) {
			return v.Convert(target).Interface(), nil
		}
	}

	return nil, &ConversionError{Value: value, Target: target.String(), Reason: "no applicable conversion"}
}

func convertString(s string, target reflect.Type) (any, bool, error) {
	if target == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, true, &ConversionError{Value: s, Target: target.String(), Reason: err.Error()}
		}
		return d, true, nil
	}
	switch target.Kind() {
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, true, &ConversionError{Value: s, Target: target.String(), Reason: err.Error()}
		}
		return castTo(b, target), true, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, true, &ConversionError{Value: s, Target: target.String(), Reason: err.Error()}
		}
		return reflect.ValueOf(i).Convert(target).Interface(), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, true, &ConversionError{Value: s, Target: target.String(), Reason: err.Error()}
		}
		return reflect.ValueOf(u).Convert(target).Interface(), true, nil
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, true, &ConversionError{Value: s, Target: target.String(), Reason: err.Error()}
		}
		return reflect.ValueOf(f).Convert(target).Interface(), true, nil
	}
	return nil, false, nil
}

func castTo(v any, target reflect.Type) any {
	rv := reflect.ValueOf(v)
	if rv.Type() == target {
		return v
	}
	return rv.Convert(target).Interface()
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
