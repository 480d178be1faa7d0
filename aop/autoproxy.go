package aop

import (
	"sync"

	"github.com/gocrud/container/logging"
)

// Proxier 代理生成器。核心只装配链，不生成代理：生成由外部实现
// 承担（接口转发包装、代码生成的静态委托等）。
type Proxier interface {
	// Proxy 用派发器包装目标对象，返回实现相同接口集的代理。
	Proxy(target any, dispatcher *Dispatcher) (any, error)
}

// ProxierFunc 函数形态的代理生成器。
type ProxierFunc func(target any, dispatcher *Dispatcher) (any, error)

func (f ProxierFunc) Proxy(target any, dispatcher *Dispatcher) (any, error) {
	return f(target, dispatcher)
}

// AutoProxyProcessor 容器后置处理器：初始化完成后把匹配的服务
// 包装成代理。循环引用场景下通过早期引用钩子提前代理，并记录
// 已代理的名字避免初始化后重复包装。
type AutoProxyProcessor struct {
	proxier  Proxier
	advisors []Advisor
	intros   []IntroductionAdvisor
	matcher  func(name string, instance any) bool
	logger   logging.Logger
	order    int

	earlyProxied sync.Map // name -> struct{}
}

// AutoProxyOption 自动代理处理器选项。
type AutoProxyOption func(*AutoProxyProcessor)

// WithMatcher 限定需要代理的服务。缺省代理全部服务。
func WithMatcher(matcher func(name string, instance any) bool) AutoProxyOption {
	return func(p *AutoProxyProcessor) {
		p.matcher = matcher
	}
}

// WithIntroductions 附加引入增强。
func WithIntroductions(intros ...IntroductionAdvisor) AutoProxyOption {
	return func(p *AutoProxyProcessor) {
		p.intros = append(p.intros, intros...)
	}
}

// WithLogger 设置日志器。
func WithLogger(logger logging.Logger) AutoProxyOption {
	return func(p *AutoProxyProcessor) {
		p.logger = logger
	}
}

// WithOrder 设置处理器排序值。
func WithOrder(order int) AutoProxyOption {
	return func(p *AutoProxyProcessor) {
		p.order = order
	}
}

// NewAutoProxyProcessor 构建自动代理处理器。
func NewAutoProxyProcessor(proxier Proxier, advisors []Advisor, opts ...AutoProxyOption) *AutoProxyProcessor {
	p := &AutoProxyProcessor{
		proxier:  proxier,
		advisors: advisors,
		logger:   logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Order 实现容器的处理器排序接口。代理包装通常放在最后。
func (p *AutoProxyProcessor) Order() int { return p.order }

// BeforeInit 不干预初始化前阶段。
func (p *AutoProxyProcessor) BeforeInit(instance any, _ string) (any, error) {
	return instance, nil
}

// AfterInit 初始化完成后包装代理。早期引用阶段已经代理过的名字
// 原样放行，保证循环双方拿到同一个代理。
func (p *AutoProxyProcessor) AfterInit(instance any, name string) (any, error) {
	if _, done := p.earlyProxied.Load(name); done {
		return instance, nil
	}
	return p.wrap(instance, name)
}

// EarlyReference 循环引用场景：早期引用外泄前先包装，后续 AfterInit
// 不再二次代理。
func (p *AutoProxyProcessor) EarlyReference(instance any, name string) any {
	p.earlyProxied.Store(name, struct{}{})
	proxied, err := p.wrap(instance, name)
	if err != nil {
		p.logger.Error("early proxy failed, exposing raw reference",
			logging.Field{Key: "service", Value: name},
			logging.Field{Key: "error", Value: err.Error()})
		return instance
	}
	return proxied
}

func (p *AutoProxyProcessor) wrap(instance any, name string) (any, error) {
	if instance == nil {
		return instance, nil
	}
	if p.matcher != nil && !p.matcher(name, instance) {
		return instance, nil
	}
	dispatcher := NewDispatcher(instance, p.advisors, p.intros...)
	proxied, err := p.proxier.Proxy(instance, dispatcher)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("service proxied",
		logging.Field{Key: "service", Value: name})
	return proxied, nil
}
