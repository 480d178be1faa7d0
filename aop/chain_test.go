package aop

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type calculator struct {
	calls []string
}

func (c *calculator) Add(a, b int) int {
	c.calls = append(c.calls, "Add")
	return a + b
}

func (c *calculator) Div(a, b int) (int, error) {
	c.calls = append(c.calls, "Div")
	if b == 0 {
		return 0, errors.New("division by zero")
	}
	return a / b, nil
}

func (c *calculator) Sum(nums ...int) int {
	total := 0
	for _, n := range nums {
		total += n
	}
	return total
}

func tracing(log *[]string, label string) Interceptor {
	return InterceptorFunc(func(inv Invocation) ([]any, error) {
		*log = append(*log, label+":in")
		out, err := inv.Proceed()
		*log = append(*log, label+":out")
		return out, err
	})
}

func TestDispatcherDirectCallWithoutAdvisors(t *testing.T) {
	d := NewDispatcher(&calculator{}, nil)

	out, err := d.Invoke(context.Background(), "Add", 2, 3)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 5, out[0])
}

func TestDispatcherErrorTail(t *testing.T) {
	d := NewDispatcher(&calculator{}, nil)

	out, err := d.Invoke(context.Background(), "Div", 1, 0)
	require.Error(t, err)
	assert.Equal(t, "division by zero", err.Error())
	require.Len(t, out, 1, "error 尾值剥离，其余返回值保留")
	assert.Equal(t, 0, out[0])
}

func TestDispatcherVariadic(t *testing.T) {
	d := NewDispatcher(&calculator{}, nil)

	out, err := d.Invoke(context.Background(), "Sum", 1, 2, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 10, out[0])

	out, err = d.Invoke(context.Background(), "Sum")
	require.NoError(t, err)
	assert.Equal(t, 0, out[0])
}

func TestDispatcherUnknownMethod(t *testing.T) {
	d := NewDispatcher(&calculator{}, nil)
	_, err := d.Invoke(context.Background(), "Nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nope")
}

func TestDispatcherArityAndTypeChecks(t *testing.T) {
	d := NewDispatcher(&calculator{}, nil)

	_, err := d.Invoke(context.Background(), "Add", 1)
	require.Error(t, err)

	_, err = d.Invoke(context.Background(), "Add", "x", "y")
	require.Error(t, err)
}

func TestChainOrder(t *testing.T) {
	var log []string
	advisors := []Advisor{
		{Interceptor: tracing(&log, "outer"), Order: 1},
		{Interceptor: tracing(&log, "inner"), Order: 10},
	}
	// 注册顺序与优先级相反
	d := NewDispatcher(&calculator{}, []Advisor{advisors[1], advisors[0]})

	out, err := d.Invoke(context.Background(), "Add", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, out[0])
	assert.Equal(t, []string{"outer:in", "inner:in", "inner:out", "outer:out"}, log)
}

func TestChainStableOrderForEqualWeights(t *testing.T) {
	var log []string
	d := NewDispatcher(&calculator{}, []Advisor{
		{Interceptor: tracing(&log, "first"), Order: 5},
		{Interceptor: tracing(&log, "second"), Order: 5},
	})

	_, err := d.Invoke(context.Background(), "Add", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"first:in", "second:in", "second:out", "first:out"}, log)
}

func TestPointcutNameMatch(t *testing.T) {
	var log []string
	d := NewDispatcher(&calculator{}, []Advisor{{
		Interceptor: tracing(&log, "div-only"),
		Pointcut:    NewNameMatchPointcut("Div"),
	}})

	_, err := d.Invoke(context.Background(), "Add", 1, 1)
	require.NoError(t, err)
	assert.Empty(t, log, "不匹配的方法不进链")

	_, err = d.Invoke(context.Background(), "Div", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"div-only:in", "div-only:out"}, log)
}

func TestPointcutWildcard(t *testing.T) {
	pc := NewNameMatchPointcut("Get*", "List*")
	target := reflect.TypeOf(&calculator{})

	matches := func(name string) bool {
		return pc.Matches(reflect.Method{Name: name}, target)
	}
	assert.True(t, matches("GetUser"))
	assert.True(t, matches("ListOrders"))
	assert.False(t, matches("Delete"))
}

type nonZeroDivisorPointcut struct{}

func (nonZeroDivisorPointcut) Matches(method reflect.Method, _ reflect.Type) bool {
	return method.Name == "Div"
}

func (nonZeroDivisorPointcut) MatchesArgs(_ reflect.Method, _ reflect.Type, args []any) bool {
	return len(args) == 2 && args[1] != 0
}

func TestDynamicPointcutRuntimeGating(t *testing.T) {
	var log []string
	d := NewDispatcher(&calculator{}, []Advisor{{
		Interceptor: tracing(&log, "dyn"),
		Pointcut:    nonZeroDivisorPointcut{},
	}})

	// 静态匹配、动态不匹配：放行不拦截
	_, err := d.Invoke(context.Background(), "Div", 1, 0)
	require.Error(t, err)
	assert.Empty(t, log)

	out, err := d.Invoke(context.Background(), "Div", 6, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, out[0])
	assert.Equal(t, []string{"dyn:in", "dyn:out"}, log)
}

func TestInterceptorRewritesArgs(t *testing.T) {
	double := InterceptorFunc(func(inv Invocation) ([]any, error) {
		args := inv.Args()
		inv.SetArgs([]any{args[0].(int) * 2, args[1].(int) * 2})
		return inv.Proceed()
	})
	d := NewDispatcher(&calculator{}, []Advisor{{Interceptor: double}})

	out, err := d.Invoke(context.Background(), "Add", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 6, out[0])
}

func TestInterceptorShortCircuits(t *testing.T) {
	target := &calculator{}
	cached := InterceptorFunc(func(inv Invocation) ([]any, error) {
		return []any{99}, nil
	})
	d := NewDispatcher(target, []Advisor{{Interceptor: cached}})

	out, err := d.Invoke(context.Background(), "Add", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 99, out[0])
	assert.Empty(t, target.calls, "短路后目标方法不被调用")
}

func TestExposeInvocation(t *testing.T) {
	var seen []string
	peek := InterceptorFunc(func(inv Invocation) ([]any, error) {
		if cur, ok := CurrentInvocation(inv.Context()); ok {
			seen = append(seen, cur.Method().Name)
		}
		return inv.Proceed()
	})
	d := NewDispatcher(&calculator{}, []Advisor{
		{Interceptor: peek, ExposeInvocation: true, Order: 1},
		{Interceptor: peek, ExposeInvocation: true, Order: 2},
	})

	_, err := d.Invoke(context.Background(), "Add", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"Add", "Add"}, seen,
		"两个声明方共享链头唯一的暴露拦截器")
}

func TestCurrentInvocationAbsentWithoutExpose(t *testing.T) {
	var exposed bool
	check := InterceptorFunc(func(inv Invocation) ([]any, error) {
		_, exposed = CurrentInvocation(inv.Context())
		return inv.Proceed()
	})
	d := NewDispatcher(&calculator{}, []Advisor{{Interceptor: check}})

	_, err := d.Invoke(context.Background(), "Add", 1, 1)
	require.NoError(t, err)
	assert.False(t, exposed, "无人声明暴露时上下文不携带在途调用")
}

func TestAssemblerCachesAndInvalidates(t *testing.T) {
	a := NewChainAssembler()
	target := reflect.TypeOf(&calculator{})
	method, ok := target.MethodByName("Add")
	require.True(t, ok)

	calls := 0
	countingPointcut := PointcutFunc(func(reflect.Method, reflect.Type) bool {
		calls++
		return true
	})
	advisors := []Advisor{{
		Interceptor: InterceptorFunc(func(inv Invocation) ([]any, error) { return inv.Proceed() }),
		Pointcut:    countingPointcut,
	}}

	c1 := a.Chain(advisors, target, method)
	c2 := a.Chain(advisors, target, method)
	require.Len(t, c1, 1)
	assert.Equal(t, 1, calls, "静态匹配结果缓存")
	assert.Equal(t, len(c1), len(c2))

	a.Invalidate(target)
	a.Chain(advisors, target, method)
	assert.Equal(t, 2, calls, "失效后重新装配")
}

type auditLog struct {
	entries []string
}

func (l *auditLog) Audit(entry string) {
	l.entries = append(l.entries, entry)
}

type auditable interface {
	Audit(entry string)
}

func TestIntroductionRoutesToDelegate(t *testing.T) {
	log := &auditLog{}
	target := &calculator{}
	d := NewDispatcher(target, nil, IntroductionAdvisor{
		Interface: reflect.TypeOf((*auditable)(nil)).Elem(),
		Delegate:  log,
	})

	assert.True(t, d.Introduced("Audit"))
	assert.False(t, d.Introduced("Add"))

	_, err := d.Invoke(context.Background(), "Audit", "created")
	require.NoError(t, err)
	assert.Equal(t, []string{"created"}, log.entries)
	assert.Empty(t, target.calls)
}

func TestIntroductionLaterWins(t *testing.T) {
	first := &auditLog{}
	second := &auditLog{}
	iface := reflect.TypeOf((*auditable)(nil)).Elem()

	d := NewDispatcher(&calculator{}, nil,
		IntroductionAdvisor{Interface: iface, Delegate: first},
		IntroductionAdvisor{Interface: iface, Delegate: second})

	_, err := d.Invoke(context.Background(), "Audit", "x")
	require.NoError(t, err)
	assert.Empty(t, first.entries)
	assert.Equal(t, []string{"x"}, second.entries, "同接口的引入后注册者生效")
}

func TestIntroductionDoesNotShadowTargetMethods(t *testing.T) {
	var log []string
	target := &calculator{}
	d := NewDispatcher(target, []Advisor{{Interceptor: tracing(&log, "adv")}},
		IntroductionAdvisor{
			Interface: reflect.TypeOf((*auditable)(nil)).Elem(),
			Delegate:  &auditLog{},
		})

	out, err := d.Invoke(context.Background(), "Add", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, out[0])
	assert.True(t, strings.HasPrefix(log[0], "adv"), "目标自身方法仍走拦截链")
}
