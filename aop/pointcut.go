package aop

import (
	"path"
	"reflect"
)

// Pointcut 静态切点：装配期判断拦截器是否适用于某个方法。
type Pointcut interface {
	Matches(method reflect.Method, targetType reflect.Type) bool
}

// DynamicPointcut 动态切点：除静态匹配外，还需在每次调用时结合
// 运行期参数再判定一次。静态不匹配的方法不会进入动态判定。
type DynamicPointcut interface {
	Pointcut
	MatchesArgs(method reflect.Method, targetType reflect.Type, args []any) bool
}

// PointcutFunc 函数形态的静态切点。
type PointcutFunc func(method reflect.Method, targetType reflect.Type) bool

func (f PointcutFunc) Matches(method reflect.Method, targetType reflect.Type) bool {
	return f(method, targetType)
}

// TruePointcut 恒真切点，拦截器无条件适用。
var TruePointcut Pointcut = PointcutFunc(func(reflect.Method, reflect.Type) bool {
	return true
})

// NameMatchPointcut 按方法名模式匹配的切点，支持 path.Match 通配。
type NameMatchPointcut struct {
	Patterns []string
}

// NewNameMatchPointcut 用给定模式构建切点。
func NewNameMatchPointcut(patterns ...string) *NameMatchPointcut {
	return &NameMatchPointcut{Patterns: patterns}
}

func (p *NameMatchPointcut) Matches(method reflect.Method, _ reflect.Type) bool {
	for _, pattern := range p.Patterns {
		if ok, err := path.Match(pattern, method.Name); err == nil && ok {
			return true
		}
	}
	return false
}
