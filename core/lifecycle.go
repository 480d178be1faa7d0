package core

import (
	"context"

	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
)

// LifecycleEvents 管理应用程序的生命周期
type LifecycleEvents struct {
	onStart []func(context.Context) error
	onStop  []func(context.Context) error
	logger  logging.Logger
}

// NewLifecycle 创建新的生命周期管理器
func NewLifecycle() *LifecycleEvents {
	return &LifecycleEvents{
		onStart: make([]func(context.Context) error, 0),
		onStop:  make([]func(context.Context) error, 0),
		logger:  logging.Nop(),
	}
}

// SetLogger 设置停止钩子失败时使用的日志器
func (l *LifecycleEvents) SetLogger(logger logging.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// OnStart 注册启动钩子
func (l *LifecycleEvents) OnStart(fn func(context.Context) error) {
	l.onStart = append(l.onStart, fn)
}

// OnStop 注册停止钩子
func (l *LifecycleEvents) OnStop(fn func(context.Context) error) {
	l.onStop = append(l.onStop, fn)
}

// Start 启动生命周期
func (l *LifecycleEvents) Start(ctx context.Context, container *di.Container) error {
	for _, fn := range l.onStart {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop 停止生命周期
// 倒序执行停止钩子；单个钩子失败只记录日志，不中断其余钩子
func (l *LifecycleEvents) Stop(ctx context.Context) error {
	for i := len(l.onStop) - 1; i >= 0; i-- {
		if err := l.onStop[i](ctx); err != nil {
			l.logger.Error("lifecycle stop hook failed",
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
	return nil
}
