package di

import (
	"reflect"
	"sort"
)

// PostProcessor 容器扩展点基础接口：在初始化前后包装或替换实例。
// AOP 代理等横切能力经此注入创建管线。
type PostProcessor interface {
	// BeforeInit 初始化回调之前调用，返回值替换实例。
	BeforeInit(instance any, name string) (any, error)
	// AfterInit 初始化回调之后调用，返回值替换实例（典型的代理包装点）。
	AfterInit(instance any, name string) (any, error)
}

// 以下扩展接口按需实现，管线对每个 PostProcessor 做类型断言。

// InstantiationHook 在实例化之前获得短路整条管线的机会：
// 返回非 nil 对象时跳过实例化/填充/初始化，直接进入后置处理。
type InstantiationHook interface {
	BeforeInstantiation(typ reflect.Type, name string) (any, error)
}

// PostInstantiationHook 在实例化之后、属性填充之前调用；
// 返回 false 跳过该实例的属性填充。
type PostInstantiationHook interface {
	AfterInstantiation(instance any, name string) (bool, error)
}

// PropertiesHook 修改即将应用的属性值集合。
type PropertiesHook interface {
	PostProcessProperties(values []PropertyValue, instance any, name string) ([]PropertyValue, error)
}

// EarlyReferenceHook 转换早期引用（循环引用场景下的代理提前包装）。
// 对每个名字至多被调用一次：注册表兑现待定工厂后缓存结果。
type EarlyReferenceHook interface {
	EarlyReference(instance any, name string) any
}

// ConstructorCandidateProvider 为目标类型限定候选构造函数集合。
// 返回 nil 表示不干预。
type ConstructorCandidateProvider interface {
	Candidates(typ reflect.Type, name string) []Constructor
}

// DestructionHook 销毁感知：容器销毁实例前回调。
type DestructionHook interface {
	BeforeDestruction(instance any, name string)
	// RequiresDestruction 报告该实例是否需要销毁回调。
	RequiresDestruction(instance any) bool
}

// Ordered 后置处理器的可选排序接口，值小者先执行。
type Ordered interface {
	Order() int
}

func sortProcessors(ps []PostProcessor) {
	sort.SliceStable(ps, func(i, j int) bool {
		return orderOf(ps[i]) < orderOf(ps[j])
	})
}

func orderOf(p any) int {
	if o, ok := p.(Ordered); ok {
		return o.Order()
	}
	return 0
}
