package redis

import (
	"context"
	"fmt"

	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"github.com/redis/go-redis/v9"
)

// BuilderOption 用于配置 Redis Builder
type BuilderOption func(*Builder)

// WithClient 添加 Redis 客户端配置
func WithClient(name string, opts ...func(*RedisClientOptions)) BuilderOption {
	return func(b *Builder) {
		var configure func(*RedisClientOptions)
		if len(opts) > 0 {
			configure = func(o *RedisClientOptions) {
				for _, opt := range opts {
					opt(o)
				}
			}
		}
		b.AddClient(name, configure)
	}
}

// New 启用 Redis 能力
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

		// 注册工厂
		if err := rt.Container.RegisterValue(di.TypeOf[*RedisClientFactory]().String(), factory); err != nil {
			return err
		}

		// 命名客户端按名字登记；default 再按类型名登记一份
		var regErr error
		factory.Each(func(name string, client *redis.Client) {
			if err := rt.Container.RegisterValue(name, client); err != nil {
				regErr = err
			}
			if name == "default" {
				if err := rt.Container.RegisterValue(di.TypeOf[*redis.Client]().String(), client); err != nil {
					regErr = err
				}
			}
		})
		if regErr != nil {
			return fmt.Errorf("redis: failed to register instance: %w", regErr)
		}

		// 注册清理钩子
		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			return factory.Close()
		})

		return nil
	}
}
