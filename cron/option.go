package cron

import (
	"context"

	"github.com/gocrud/container/core"
)

// BuilderOption 用于配置 Cron Builder
type BuilderOption func(*Builder)

// WithSeconds 启用秒级精度
func WithSeconds() BuilderOption {
	return func(b *Builder) {
		b.WithSeconds()
	}
}

// WithLocation 设置时区
func WithLocation(location string) BuilderOption {
	return func(b *Builder) {
		b.WithLocation(location)
	}
}

// EnableCronLogger 启用 cron 库的内部调度日志
func EnableCronLogger() BuilderOption {
	return func(b *Builder) {
		b.EnableCronLogger()
	}
}

// AddJob 添加任务
func AddJob(spec, name string, handler any) BuilderOption {
	return func(b *Builder) {
		b.AddJobWithDI(spec, name, handler)
	}
}

// New 启用 Cron 能力
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}

		// 构建阶段只收集任务定义；带 DI 的任务在 Start 时
		// 才从容器解析参数，此时容器已构建完成
		svc, err := builder.build(rt.Container.Logger())
		if err != nil {
			return err
		}

		rt.Lifecycle.OnStart(func(ctx context.Context) error {
			svc.Inject(rt.Container, nil)
			return svc.Start(ctx)
		})

		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			return svc.Stop(ctx)
		})

		// 注册为特性
		rt.Features.Set(svc)

		return nil
	}
}
