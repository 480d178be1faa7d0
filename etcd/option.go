package etcd

import (
	"context"
	"fmt"

	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// BuilderOption 用于配置 Etcd Builder
type BuilderOption func(*Builder)

// WithClient 添加 Etcd 客户端配置
func WithClient(name string, opts ...func(*EtcdClientOptions)) BuilderOption {
	return func(b *Builder) {
		var configure func(*EtcdClientOptions)
		if len(opts) > 0 {
			configure = func(o *EtcdClientOptions) {
				for _, opt := range opts {
					opt(o)
				}
			}
		}
		b.AddClient(name, configure)
	}
}

// New 启用 Etcd 能力
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}

		factory, err := builder.Build(rt.Container.Logger())
		if err != nil {
			return err
		}
		if factory == nil {
			return nil
		}

		// 注册 factory 到容器
		if err := rt.Container.RegisterValue(di.TypeOf[*EtcdClientFactory]().String(), factory); err != nil {
			return err
		}

		// 命名客户端按名字登记；default 再按类型名登记一份
		var regErr error
		factory.Each(func(name string, client *clientv3.Client) {
			if err := rt.Container.RegisterValue(name, client); err != nil {
				regErr = err
			}
			if name == "default" {
				if err := rt.Container.RegisterValue(di.TypeOf[*clientv3.Client]().String(), client); err != nil {
					regErr = err
				}
			}
		})
		if regErr != nil {
			return fmt.Errorf("etcd: failed to register instance: %w", regErr)
		}

		// 注册清理钩子
		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			return factory.Close()
		})

		return nil
	}
}
