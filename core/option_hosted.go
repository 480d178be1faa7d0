package core

import (
	"context"
	"fmt"
	"reflect"
)

// WithHostedService 注册一个托管服务
// service 可以是返回服务的构造函数，也可以是现成实例；
// 两者都必须实现 HostedService 接口。
// 框架会在 OnStart 时启动 Goroutine 调用 Start，在 OnStop 时调用 Stop。
func WithHostedService(service any) Option {
	return func(rt *Runtime) error {
		t := reflect.TypeOf(service)
		if t == nil {
			return fmt.Errorf("WithHostedService: service must not be nil")
		}

		serviceType := t
		if t.Kind() == reflect.Func {
			if t.NumOut() == 0 {
				return fmt.Errorf("WithHostedService: constructor must return the service, got %T", service)
			}
			serviceType = t.Out(0)
		}

		hostedServiceType := reflect.TypeOf((*HostedService)(nil)).Elem()
		if !serviceType.Implements(hostedServiceType) {
			return fmt.Errorf("WithHostedService: service %v does not implement core.HostedService", serviceType)
		}

		// 注册服务
		if err := rt.Provide(service); err != nil {
			return fmt.Errorf("WithHostedService: failed to provide service: %w", err)
		}
		serviceName := serviceType.String()

		var serviceCtx context.Context
		var serviceCancel context.CancelFunc

		rt.Lifecycle.OnStart(func(ctx context.Context) error {
			val, err := rt.Container.Get(serviceName)
			if err != nil {
				return fmt.Errorf("failed to resolve hosted service %v: %w", serviceType, err)
			}

			// 服务上下文伴随应用运行，不随启动上下文结束
			serviceCtx, serviceCancel = context.WithCancel(context.Background())

			// 异步调用 Start，允许 Start 方法阻塞
			go func() {
				if err := val.(HostedService).Start(serviceCtx); err != nil {
					if rt.ErrorHandler != nil {
						rt.ErrorHandler(fmt.Errorf("HostedService %v exited with error: %w", serviceType, err))
					}
					// 关键服务崩溃，触发应用退出 (Fail Fast)
					rt.Shutdown()
				}
			}()
			return nil
		})

		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			if serviceCancel != nil {
				serviceCancel()
			}

			val, err := rt.Container.Get(serviceName)
			if err != nil {
				return nil
			}
			return val.(HostedService).Stop(ctx)
		})

		return nil
	}
}

// WorkerFunc 定义简单的后台任务函数
// 这是一个阻塞函数，通过 ctx.Done() 判断退出。
type WorkerFunc func(ctx context.Context) error

// WithWorker 将一个阻塞的函数注册为后台服务
// 框架会自动将其适配为 HostedService (异步启动，Cancel停止)
func WithWorker(fn WorkerFunc) Option {
	return func(rt *Runtime) error {
		var workerCtx context.Context
		var workerCancel context.CancelFunc

		rt.Lifecycle.OnStart(func(ctx context.Context) error {
			workerCtx, workerCancel = context.WithCancel(context.Background())

			go func() {
				if err := fn(workerCtx); err != nil {
					if rt.ErrorHandler != nil {
						rt.ErrorHandler(fmt.Errorf("Worker exited with error: %w", err))
					}
					rt.Shutdown()
				}
			}()
			return nil
		})

		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			if workerCancel != nil {
				workerCancel()
			}
			return nil
		})

		return nil
	}
}
