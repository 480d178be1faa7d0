package aop

import "reflect"

// Advisor 增强器：一个拦截器加上它的适用范围。
type Advisor struct {
	// Interceptor 横切行为。
	Interceptor Interceptor
	// Pointcut 适用范围，nil 视为恒真。实现 DynamicPointcut 时
	// 每次调用还会做运行期参数判定。
	Pointcut Pointcut
	// Order 排序值，小者先执行。同值保持注册顺序。
	Order int
	// ExposeInvocation 声明拦截器需要通过 CurrentInvocation 访问
	// 在途调用。任一匹配的增强器声明即可，链头的暴露拦截器至多
	// 插入一次。
	ExposeInvocation bool
}

func (a Advisor) pointcut() Pointcut {
	if a.Pointcut == nil {
		return TruePointcut
	}
	return a.Pointcut
}

// IntroductionAdvisor 引入增强：为代理附加一个新接口，方法调用
// 转发给委托对象。
type IntroductionAdvisor struct {
	// Interface 被引入的接口类型。
	Interface reflect.Type
	// Delegate 实现该接口的委托对象。
	Delegate any
}

// mergeIntroductions 合并引入增强：目标接口完全相同的多个引入，
// 只保留后注册的那个。
func mergeIntroductions(intros []IntroductionAdvisor) []IntroductionAdvisor {
	var out []IntroductionAdvisor
	for _, intro := range intros {
		replaced := false
		for i := range out {
			if out[i].Interface == intro.Interface {
				out[i] = intro
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, intro)
		}
	}
	return out
}
