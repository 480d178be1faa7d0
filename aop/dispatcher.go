package aop

import (
	"context"
	"fmt"
	"reflect"
)

// Dispatcher 反射派发器：把对目标对象的方法调用路由到装配好的
// 拦截器链上。代理实现持有一个派发器并把所有调用转发给 Invoke。
type Dispatcher struct {
	target    any
	ttype     reflect.Type
	advisors  []Advisor
	intros    []IntroductionAdvisor
	assembler *ChainAssembler
}

// NewDispatcher 为目标对象构建派发器。引入增强按目标接口去重，
// 后注册者生效。
func NewDispatcher(target any, advisors []Advisor, intros ...IntroductionAdvisor) *Dispatcher {
	return &Dispatcher{
		target:    target,
		ttype:     reflect.TypeOf(target),
		advisors:  advisors,
		intros:    mergeIntroductions(intros),
		assembler: NewChainAssembler(),
	}
}

// Target 被代理的原始对象。
func (d *Dispatcher) Target() any { return d.target }

// Introduced 报告方法是否由引入增强提供。
func (d *Dispatcher) Introduced(method string) bool {
	return d.introductionFor(method) != nil
}

// Invoke 派发一次方法调用：引入的方法直达委托对象，目标自身的方法
// 走拦截器链。
func (d *Dispatcher) Invoke(ctx context.Context, method string, args ...any) ([]any, error) {
	if intro := d.introductionFor(method); intro != nil {
		return callMethod(intro.Delegate, method, args)
	}

	m, ok := d.ttype.MethodByName(method)
	if !ok {
		return nil, fmt.Errorf("aop: no method %q on %s", method, d.ttype)
	}

	chain := d.assembler.Chain(d.advisors, d.ttype, m)
	if len(chain) == 0 {
		return callMethod(d.target, method, args)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	inv := &methodInvocation{
		ctx:    ctx,
		target: d.target,
		method: m,
		args:   args,
		chain:  chain,
	}
	return inv.Proceed()
}

func (d *Dispatcher) introductionFor(method string) *IntroductionAdvisor {
	for i := range d.intros {
		iface := d.intros[i].Interface
		if iface == nil || iface.Kind() != reflect.Interface {
			continue
		}
		if _, ok := iface.MethodByName(method); ok {
			return &d.intros[i]
		}
	}
	return nil
}
