package aop

import (
	"context"
	"testing"

	"github.com/gocrud/container/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// greeterProxy 接口转发式代理：全部调用交给派发器。
type greeterProxy struct {
	dispatcher *Dispatcher
}

func (p *greeterProxy) Greet(name string) string {
	out, err := p.dispatcher.Invoke(context.Background(), "Greet", name)
	if err != nil {
		return ""
	}
	return out[0].(string)
}

type greeter struct {
	prefix string
}

func (g *greeter) Greet(name string) string {
	return g.prefix + name
}

func greeterProxier() Proxier {
	return ProxierFunc(func(target any, dispatcher *Dispatcher) (any, error) {
		if _, ok := target.(*greeter); !ok {
			return target, nil
		}
		return &greeterProxy{dispatcher: dispatcher}, nil
	})
}

func upperAdvisor(log *[]string) Advisor {
	return Advisor{Interceptor: InterceptorFunc(func(inv Invocation) ([]any, error) {
		*log = append(*log, "intercepted:"+inv.Method().Name)
		return inv.Proceed()
	})}
}

func TestAutoProxyWrapsAfterInit(t *testing.T) {
	var log []string
	p := NewAutoProxyProcessor(greeterProxier(), []Advisor{upperAdvisor(&log)})

	target := &greeter{prefix: "hi "}
	wrapped, err := p.AfterInit(target, "greeter")
	require.NoError(t, err)

	proxy, ok := wrapped.(*greeterProxy)
	require.True(t, ok)
	assert.Equal(t, "hi bob", proxy.Greet("bob"))
	assert.Equal(t, []string{"intercepted:Greet"}, log)
}

func TestAutoProxyMatcherFilters(t *testing.T) {
	p := NewAutoProxyProcessor(greeterProxier(), nil,
		WithMatcher(func(name string, _ any) bool { return name == "wanted" }))

	target := &greeter{}
	wrapped, err := p.AfterInit(target, "other")
	require.NoError(t, err)
	assert.Same(t, target, wrapped, "不匹配的服务原样放行")

	wrapped, err = p.AfterInit(target, "wanted")
	require.NoError(t, err)
	assert.IsType(t, &greeterProxy{}, wrapped)
}

func TestAutoProxyEarlyReferenceDeduplicates(t *testing.T) {
	p := NewAutoProxyProcessor(greeterProxier(), nil)

	target := &greeter{prefix: "yo "}
	early := p.EarlyReference(target, "greeter")
	proxy, ok := early.(*greeterProxy)
	require.True(t, ok, "早期引用阶段即完成代理")

	// 初始化后不再二次包装：环内外引用保持同一个代理
	after, err := p.AfterInit(target, "greeter")
	require.NoError(t, err)
	assert.Same(t, target, after)
	assert.Equal(t, "yo ann", proxy.Greet("ann"))
}

func TestAutoProxyOrder(t *testing.T) {
	p := NewAutoProxyProcessor(greeterProxier(), nil, WithOrder(100))
	assert.Equal(t, 100, p.Order())
}

func TestAutoProxyInContainer(t *testing.T) {
	var log []string
	c := di.New()
	c.AddPostProcessor(NewAutoProxyProcessor(greeterProxier(), []Advisor{upperAdvisor(&log)}))

	require.NoError(t, c.Register(di.NewDefinition("greeter",
		di.WithConstructor(func() *greeter { return &greeter{prefix: "hello "} }))))

	obj, err := c.Get("greeter")
	require.NoError(t, err)

	proxy, ok := obj.(*greeterProxy)
	require.True(t, ok, "容器缓存并返回代理")
	assert.Equal(t, "hello eve", proxy.Greet("eve"))
	assert.Equal(t, []string{"intercepted:Greet"}, log)

	again, err := c.Get("greeter")
	require.NoError(t, err)
	assert.Same(t, obj, again)
}

type loopGreeter struct {
	prefix string
	Holder *proxyHolder `di:"holder"`
}

func (g *loopGreeter) Greet(name string) string {
	return g.prefix + name
}

type loopGreeterProxy struct {
	dispatcher *Dispatcher
}

func (p *loopGreeterProxy) Greet(name string) string {
	out, err := p.dispatcher.Invoke(context.Background(), "Greet", name)
	if err != nil {
		return ""
	}
	return out[0].(string)
}

type proxyHolder struct {
	Greeter any `di:"greeter"`
}

func TestAutoProxyInContainerWithCycle(t *testing.T) {
	c := di.New()
	c.AddPostProcessor(NewAutoProxyProcessor(ProxierFunc(
		func(target any, dispatcher *Dispatcher) (any, error) {
			if _, ok := target.(*loopGreeter); !ok {
				return target, nil
			}
			return &loopGreeterProxy{dispatcher: dispatcher}, nil
		}), nil))

	require.NoError(t, c.Register(di.NewDefinition("greeter",
		di.WithConstructor(func() *loopGreeter { return &loopGreeter{prefix: "loop "} }))))
	require.NoError(t, c.Register(di.NewDefinition("holder",
		di.WithConstructor(func() *proxyHolder { return &proxyHolder{} }))))

	obj, err := c.Get("greeter")
	require.NoError(t, err)
	proxy, ok := obj.(*loopGreeterProxy)
	require.True(t, ok)

	holder, err := c.Get("holder")
	require.NoError(t, err)
	// 环两端拿到同一个代理：早期引用阶段完成包装，初始化后不再二次代理
	assert.Same(t, proxy, holder.(*proxyHolder).Greeter)
	assert.Equal(t, "loop cycle", proxy.Greet("cycle"))
	assert.NotNil(t, proxy.dispatcher.Target().(*loopGreeter).Holder)
}
