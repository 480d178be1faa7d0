package aop

import (
	"context"
	"fmt"
	"reflect"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// methodInvocation Invocation 的默认实现，携带链条推进位置。
type methodInvocation struct {
	ctx    context.Context
	target any
	method reflect.Method
	args   []any
	chain  []Interceptor
	pos    int
}

func (inv *methodInvocation) Context() context.Context { return inv.ctx }
func (inv *methodInvocation) Target() any              { return inv.target }
func (inv *methodInvocation) Method() reflect.Method   { return inv.method }
func (inv *methodInvocation) Args() []any              { return inv.args }
func (inv *methodInvocation) SetArgs(args []any)       { inv.args = args }

func (inv *methodInvocation) Proceed() ([]any, error) {
	if inv.pos < len(inv.chain) {
		next := inv.chain[inv.pos]
		inv.pos++
		return next.Invoke(inv)
	}
	return callMethod(inv.target, inv.method.Name, inv.args)
}

// callMethod 反射调用目标方法。末位 error 返回值剥离为调用错误。
func callMethod(target any, method string, args []any) ([]any, error) {
	m := reflect.ValueOf(target).MethodByName(method)
	if !m.IsValid() {
		return nil, fmt.Errorf("aop: no method %q on %T", method, target)
	}
	mt := m.Type()
	if mt.IsVariadic() {
		if len(args) < mt.NumIn()-1 {
			return nil, fmt.Errorf("aop: method %q wants at least %d args, got %d", method, mt.NumIn()-1, len(args))
		}
	} else if len(args) != mt.NumIn() {
		return nil, fmt.Errorf("aop: method %q wants %d args, got %d", method, mt.NumIn(), len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var want reflect.Type
		if mt.IsVariadic() && i >= mt.NumIn()-1 {
			want = mt.In(mt.NumIn() - 1).Elem()
		} else {
			want = mt.In(i)
		}
		if arg == nil {
			in[i] = reflect.Zero(want)
			continue
		}
		av := reflect.ValueOf(arg)
		if !av.Type().AssignableTo(want) {
			return nil, fmt.Errorf("aop: method %q arg %d is %T, want %s", method, i, arg, want)
		}
		in[i] = av
	}

	results := m.Call(in)

	out := make([]any, 0, len(results))
	var callErr error
	for i, r := range results {
		if i == len(results)-1 && r.Type() == errorType {
			if !r.IsNil() {
				callErr = r.Interface().(error)
			}
			continue
		}
		out = append(out, r.Interface())
	}
	return out, callErr
}
