package di

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lcConn struct {
	events *[]string
}

func (c *lcConn) Init() error {
	*c.events = append(*c.events, "Init")
	return nil
}

func (c *lcConn) Warmup() {
	*c.events = append(*c.events, "Warmup")
}

func (c *lcConn) Shutdown() error {
	*c.events = append(*c.events, "Shutdown")
	return nil
}

func (c *lcConn) Close() error {
	*c.events = append(*c.events, "Close")
	return nil
}

func TestLifecycleInitializerInterface(t *testing.T) {
	c := New()
	var events []string
	require.NoError(t, c.Register(NewDefinition("conn",
		WithSupplier(func() (any, error) { return &lcConn{events: &events}, nil }))))

	_, err := c.Get("conn")
	require.NoError(t, err)
	assert.Equal(t, []string{"Init"}, events)
}

func TestLifecycleNamedInitMethod(t *testing.T) {
	c := New()
	var events []string
	require.NoError(t, c.Register(NewDefinition("conn",
		WithSupplier(func() (any, error) { return &lcConn{events: &events}, nil }),
		WithInit("Warmup"))))

	_, err := c.Get("conn")
	require.NoError(t, err)
	assert.Equal(t, []string{"Init", "Warmup"}, events, "接口回调先于命名方法")
}

func TestLifecycleInitMethodDeduplicated(t *testing.T) {
	c := New()
	var events []string
	require.NoError(t, c.Register(NewDefinition("conn",
		WithSupplier(func() (any, error) { return &lcConn{events: &events}, nil }),
		WithInit("Init"))))

	_, err := c.Get("conn")
	require.NoError(t, err)
	assert.Equal(t, []string{"Init"}, events, "同名只执行一次")
}

func TestLifecycleExternallyManagedInit(t *testing.T) {
	c := New()
	var events []string
	require.NoError(t, c.Register(NewDefinition("conn",
		WithSupplier(func() (any, error) { return &lcConn{events: &events}, nil }),
		WithExternallyManaged("Init"))))

	_, err := c.Get("conn")
	require.NoError(t, err)
	assert.Empty(t, events, "外部接管的方法容器不再调用")
}

func TestLifecycleMissingInitMethod(t *testing.T) {
	c := New()
	var events []string
	require.NoError(t, c.Register(NewDefinition("conn",
		WithSupplier(func() (any, error) { return &lcConn{events: &events}, nil }),
		WithInit("DoesNotExist"))))

	_, err := c.Get("conn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DoesNotExist")
}

func TestLifecycleDestroyMethod(t *testing.T) {
	c := New()
	var events []string
	require.NoError(t, c.Register(NewDefinition("conn",
		WithSupplier(func() (any, error) { return &lcConn{events: &events}, nil }),
		WithDestroy("Shutdown"))))

	_, err := c.Get("conn")
	require.NoError(t, err)
	c.Close()
	assert.Equal(t, []string{"Init", "Shutdown"}, events)
}

func TestLifecycleCloserFallback(t *testing.T) {
	c := New()
	var events []string
	require.NoError(t, c.Register(NewDefinition("conn",
		WithSupplier(func() (any, error) { return &lcConn{events: &events}, nil }))))

	_, err := c.Get("conn")
	require.NoError(t, err)
	c.Close()
	assert.Equal(t, []string{"Init", "Close"}, events, "无显式销毁配置时回退 io.Closer")
}

func TestLifecycleDestroyFnTakesPrecedence(t *testing.T) {
	c := New()
	var events []string
	require.NoError(t, c.Register(NewDefinition("conn",
		WithSupplier(func() (any, error) { return &lcConn{events: &events}, nil }),
		WithDestroy("Shutdown"),
		WithDestroyFn(func(any) error {
			events = append(events, "fn")
			return nil
		}))))

	_, err := c.Get("conn")
	require.NoError(t, err)
	c.Close()
	assert.Equal(t, []string{"Init", "fn"}, events, "DestroyFn 优先于命名方法")
}

func TestLifecyclePrototypeNotManaged(t *testing.T) {
	c := New()
	var events []string
	require.NoError(t, c.Register(NewDefinition("conn",
		WithPrototype(),
		WithSupplier(func() (any, error) { return &lcConn{events: &events}, nil }),
		WithDestroy("Shutdown"))))

	_, err := c.Get("conn")
	require.NoError(t, err)
	c.Close()
	assert.Equal(t, []string{"Init"}, events, "原型实例归调用方所有，容器不销毁")
}

func TestLifecycleDestroyErrorDoesNotStopOthers(t *testing.T) {
	c := New()
	var survived bool
	require.NoError(t, c.RegisterValueWithDestroy("bad", &struct{}{}, func() error {
		return errors.New("refuse to die")
	}))
	require.NoError(t, c.RegisterValueWithDestroy("good", &struct{}{}, func() error {
		survived = true
		return nil
	}))

	c.Close()
	assert.True(t, survived, "单个销毁失败不阻断其余销毁")
}

// ---- 后置处理器 ----

type lcTracingProcessor struct {
	order  int
	events *[]string
	label  string
}

func (p *lcTracingProcessor) Order() int { return p.order }

func (p *lcTracingProcessor) BeforeInit(instance any, name string) (any, error) {
	*p.events = append(*p.events, p.label+":before:"+name)
	return instance, nil
}

func (p *lcTracingProcessor) AfterInit(instance any, name string) (any, error) {
	*p.events = append(*p.events, p.label+":after:"+name)
	return instance, nil
}

func TestPostProcessorOrdering(t *testing.T) {
	c := New()
	var events []string
	// 注册顺序与优先级相反，验证按 Order 稳定排序
	c.AddPostProcessor(&lcTracingProcessor{order: 10, events: &events, label: "second"})
	c.AddPostProcessor(&lcTracingProcessor{order: 1, events: &events, label: "first"})

	require.NoError(t, c.Register(NewDefinition("svc",
		WithSupplier(func() (any, error) { return &struct{}{}, nil }))))
	_, err := c.Get("svc")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"first:before:svc", "second:before:svc",
		"first:after:svc", "second:after:svc",
	}, events)
}

type lcWrappingProcessor struct{}

type lcWrapped struct {
	Inner any
}

func (lcWrappingProcessor) BeforeInit(instance any, name string) (any, error) {
	return instance, nil
}

func (lcWrappingProcessor) AfterInit(instance any, name string) (any, error) {
	if name == "svc" {
		return &lcWrapped{Inner: instance}, nil
	}
	return instance, nil
}

func TestPostProcessorReplacesInstance(t *testing.T) {
	c := New()
	c.AddPostProcessor(lcWrappingProcessor{})

	inner := &struct{ V int }{V: 1}
	require.NoError(t, c.Register(NewDefinition("svc",
		WithSupplier(func() (any, error) { return inner, nil }))))

	obj, err := c.Get("svc")
	require.NoError(t, err)
	w, ok := obj.(*lcWrapped)
	require.True(t, ok, "容器缓存并返回包装后的对象")
	assert.Same(t, inner, w.Inner)
}

type lcShortCircuitProcessor struct {
	canned any
}

func (p *lcShortCircuitProcessor) BeforeInit(instance any, name string) (any, error) {
	return instance, nil
}

func (p *lcShortCircuitProcessor) AfterInit(instance any, name string) (any, error) {
	return instance, nil
}

func (p *lcShortCircuitProcessor) BeforeInstantiation(t reflect.Type, name string) (any, error) {
	if name == "svc" {
		return p.canned, nil
	}
	return nil, nil
}

func TestPostProcessorShortCircuitsInstantiation(t *testing.T) {
	c := New()
	canned := &lcConn{}
	c.AddPostProcessor(&lcShortCircuitProcessor{canned: canned})

	created := false
	require.NoError(t, c.Register(NewDefinition("svc",
		WithSupplier(func() (any, error) {
			created = true
			return &lcConn{}, nil
		}))))

	obj, err := c.Get("svc")
	require.NoError(t, err)
	assert.Same(t, canned, obj)
	assert.False(t, created, "实例化前钩子短路整条创建管线")
}

type lcSkipPopulationProcessor struct{}

func (lcSkipPopulationProcessor) BeforeInit(instance any, name string) (any, error) {
	return instance, nil
}

func (lcSkipPopulationProcessor) AfterInit(instance any, name string) (any, error) {
	return instance, nil
}

func (lcSkipPopulationProcessor) AfterInstantiation(instance any, name string) (bool, error) {
	return false, nil
}

func TestPostProcessorSkipsPopulation(t *testing.T) {
	c := New()
	c.AddPostProcessor(lcSkipPopulationProcessor{})

	type svc struct{ Port int }
	require.NoError(t, c.Register(NewDefinition("svc",
		WithConstructor(func() *svc { return &svc{} }),
		WithProperty("Port", 8080))))

	obj, err := c.Get("svc")
	require.NoError(t, err)
	assert.Zero(t, obj.(*svc).Port, "实例化后钩子返回 false 跳过属性填充")
}

type lcPropertyInjector struct{}

func (lcPropertyInjector) BeforeInit(instance any, name string) (any, error) { return instance, nil }
func (lcPropertyInjector) AfterInit(instance any, name string) (any, error)  { return instance, nil }

func (lcPropertyInjector) PostProcessProperties(props []PropertyValue, instance any, name string) ([]PropertyValue, error) {
	if name == "svc" {
		props = append(props, PropertyValue{Name: "Port", Value: 9090})
	}
	return props, nil
}

func TestPostProcessorAmendsProperties(t *testing.T) {
	c := New()
	c.AddPostProcessor(lcPropertyInjector{})

	type svc struct{ Port int }
	require.NoError(t, c.Register(NewDefinition("svc",
		WithConstructor(func() *svc { return &svc{} }))))

	obj, err := c.Get("svc")
	require.NoError(t, err)
	assert.Equal(t, 9090, obj.(*svc).Port)
}

type lcDestructionRecorder struct {
	names *[]string
}

func (p *lcDestructionRecorder) BeforeInit(instance any, name string) (any, error) {
	return instance, nil
}

func (p *lcDestructionRecorder) AfterInit(instance any, name string) (any, error) {
	return instance, nil
}

func (p *lcDestructionRecorder) BeforeDestruction(instance any, name string) {
	*p.names = append(*p.names, name)
}

func (p *lcDestructionRecorder) RequiresDestruction(instance any) bool { return true }

func TestPostProcessorDestructionHook(t *testing.T) {
	c := New()
	var names []string
	c.AddPostProcessor(&lcDestructionRecorder{names: &names})

	var events []string
	require.NoError(t, c.Register(NewDefinition("conn",
		WithSupplier(func() (any, error) { return &lcConn{events: &events}, nil }),
		WithDestroy("Shutdown"))))

	_, err := c.Get("conn")
	require.NoError(t, err)
	c.Close()
	assert.Equal(t, []string{"conn"}, names, "销毁钩子先于销毁方法")
	assert.Equal(t, []string{"Init", "Shutdown"}, events)
}

func TestPropertyConversion(t *testing.T) {
	c := New()
	type svc struct {
		Port    int
		Debug   bool
		Ratio   float64
		Ignored string
	}
	require.NoError(t, c.Register(NewDefinition("svc",
		WithConstructor(func() *svc { return &svc{} }),
		WithProperty("Port", "8080"),
		WithProperty("Debug", "true"),
		WithProperty("Ratio", "0.75"),
		WithOptionalProperty("Missing", "skipped"))))

	obj, err := c.Get("svc")
	require.NoError(t, err)
	s := obj.(*svc)
	assert.Equal(t, 8080, s.Port)
	assert.True(t, s.Debug)
	assert.InDelta(t, 0.75, s.Ratio, 1e-9)
}

func TestPropertyUnknownFieldFails(t *testing.T) {
	c := New()
	type svc struct{ Port int }
	require.NoError(t, c.Register(NewDefinition("svc",
		WithConstructor(func() *svc { return &svc{} }),
		WithProperty("Nope", 1))))

	_, err := c.Get("svc")
	var unsat *UnsatisfiedDependencyError
	require.ErrorAs(t, err, &unsat)
	assert.Equal(t, "Nope", unsat.InjectionPoint)
}

func TestPropertyRef(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(NewDefinition("pool",
		WithConstructor(func() *cnPool { return &cnPool{size: 2} }))))

	type svc struct{ Pool *cnPool }
	require.NoError(t, c.Register(NewDefinition("svc",
		WithConstructor(func() *svc { return &svc{} }),
		WithPropertyRef("Pool", "pool"))))

	obj, err := c.Get("svc")
	require.NoError(t, err)
	pool, err := c.Get("pool")
	require.NoError(t, err)
	assert.Same(t, pool, obj.(*svc).Pool)
}

func TestPropertyRefTypeMismatch(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(NewDefinition("pool",
		WithConstructor(func() *cnPool { return &cnPool{} }))))

	type svc struct{ Port int }
	require.NoError(t, c.Register(NewDefinition("svc",
		WithConstructor(func() *svc { return &svc{} }),
		WithPropertyRef("Port", "pool"))))

	_, err := c.Get("svc")
	var unsat *UnsatisfiedDependencyError
	require.ErrorAs(t, err, &unsat)
}
