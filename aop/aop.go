// Package aop 实现调用拦截链的装配与派发：给定目标对象与一组
// 增强器（无条件或切点限定的拦截器），为每个方法装配一条有序的
// 调用链，并通过反射派发器驱动执行。代理的生成本身由外部
// Proxier 承担，本包只负责链的装配。
package aop

import (
	"context"
	"reflect"
)

// Invocation 一次在途的方法调用。拦截器通过 Proceed 推进链条，
// 链尾落到目标方法的真实调用。
type Invocation interface {
	// Context 调用上下文。
	Context() context.Context
	// Target 被拦截的目标对象。
	Target() any
	// Method 被调用的方法。
	Method() reflect.Method
	// Args 当前参数列表。
	Args() []any
	// SetArgs 替换参数列表，对链条后续环节生效。
	SetArgs(args []any)
	// Proceed 推进到下一个拦截器，链尾调用目标方法。
	Proceed() ([]any, error)
}

// Interceptor 环绕增强：在 Proceed 前后插入横切行为。
type Interceptor interface {
	Invoke(inv Invocation) ([]any, error)
}

// InterceptorFunc 函数形态的拦截器。
type InterceptorFunc func(inv Invocation) ([]any, error)

func (f InterceptorFunc) Invoke(inv Invocation) ([]any, error) {
	return f(inv)
}

type invocationKey struct{}

// CurrentInvocation 取出链头暴露的在途调用。只有某个匹配的增强器
// 声明 ExposeInvocation 时链头才会插入暴露拦截器。
func CurrentInvocation(ctx context.Context) (Invocation, bool) {
	inv, ok := ctx.Value(invocationKey{}).(Invocation)
	return inv, ok
}

// exposeInterceptor 把在途调用写进调用上下文。整条链至多插入一次，
// 且永远位于链头。
type exposeInterceptor struct{}

func (exposeInterceptor) Invoke(inv Invocation) ([]any, error) {
	if mi, ok := inv.(*methodInvocation); ok {
		mi.ctx = context.WithValue(mi.ctx, invocationKey{}, inv)
	}
	return inv.Proceed()
}
