package aop

import (
	"reflect"
	"sort"
	"sync"
)

// chainKey 方法签名级别的缓存键。
type chainKey struct {
	target reflect.Type
	method string
}

// ChainAssembler 按方法装配拦截器链。静态匹配结果按
// (目标类型, 方法名) 缓存；动态切点包装为运行期再判定的拦截器，
// 缓存的是包装后的链。
type ChainAssembler struct {
	mu    sync.RWMutex
	cache map[chainKey][]Interceptor
}

// NewChainAssembler 构建链装配器。
func NewChainAssembler() *ChainAssembler {
	return &ChainAssembler{cache: make(map[chainKey][]Interceptor)}
}

// Chain 为目标类型的一个方法装配有序拦截器链。
// 任一匹配的增强器声明 ExposeInvocation 时，链头插入一个（且仅一个）
// 暴露拦截器。
func (a *ChainAssembler) Chain(advisors []Advisor, targetType reflect.Type, method reflect.Method) []Interceptor {
	key := chainKey{target: targetType, method: method.Name}

	a.mu.RLock()
	cached, ok := a.cache[key]
	a.mu.RUnlock()
	if ok {
		return cached
	}

	chain := assembleChain(advisors, targetType, method)

	a.mu.Lock()
	a.cache[key] = chain
	a.mu.Unlock()
	return chain
}

// Invalidate 清空某个目标类型的缓存链。增强器集合变化后调用。
func (a *ChainAssembler) Invalidate(targetType reflect.Type) {
	a.mu.Lock()
	for key := range a.cache {
		if key.target == targetType {
			delete(a.cache, key)
		}
	}
	a.mu.Unlock()
}

func assembleChain(advisors []Advisor, targetType reflect.Type, method reflect.Method) []Interceptor {
	ordered := make([]Advisor, len(advisors))
	copy(ordered, advisors)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	var chain []Interceptor
	expose := false
	for _, adv := range ordered {
		pc := adv.pointcut()
		if !pc.Matches(method, targetType) {
			continue
		}
		if adv.ExposeInvocation {
			expose = true
		}
		if dyn, ok := pc.(DynamicPointcut); ok {
			chain = append(chain, &dynamicInterceptor{pointcut: dyn, delegate: adv.Interceptor})
		} else {
			chain = append(chain, adv.Interceptor)
		}
	}

	if expose && len(chain) > 0 {
		chain = append([]Interceptor{exposeInterceptor{}}, chain...)
	}
	return chain
}

// dynamicInterceptor 动态切点的运行期判定包装：参数不匹配时直接放行。
type dynamicInterceptor struct {
	pointcut DynamicPointcut
	delegate Interceptor
}

func (d *dynamicInterceptor) Invoke(inv Invocation) ([]any, error) {
	if d.pointcut.MatchesArgs(inv.Method(), reflect.TypeOf(inv.Target()), inv.Args()) {
		return d.delegate.Invoke(inv)
	}
	return inv.Proceed()
}
