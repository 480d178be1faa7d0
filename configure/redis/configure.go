package redis

import (
	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	"github.com/redis/go-redis/v9"
)

// Configure 返回 Redis 配置器
// 使用示例: builder.Configure(redis.Configure(func(b *redis.Builder) { ... }))
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder()
		if options != nil {
			options(builder)
		}

		// 构建 redis factory
		factory, err := builder.Build(ctx.GetLogger())
		if err != nil {
			ctx.GetLogger().Fatal("Failed to build redis clients",
				logging.Field{Key: "error", Value: err.Error()})
		}
		if factory == nil {
			return
		}

		container := ctx.GetContainer()

		// 注册 factory 到容器
		if err := container.RegisterValue(di.TypeOf[*RedisClientFactory]().String(), factory); err != nil {
			ctx.GetLogger().Error("Failed to register redis factory",
				logging.Field{Key: "error", Value: err.Error()})
		}

		// 命名客户端按名字登记，供 di 标签与 ResolveNamed 使用
		factory.Each(func(name string, client *redis.Client) {
			if err := container.RegisterValue(name, client); err != nil {
				ctx.GetLogger().Error("Failed to register redis client",
					logging.Field{Key: "name", Value: name},
					logging.Field{Key: "error", Value: err.Error()})
			}
		})

		// 如果有默认客户端，再按类型名登记一份
		if defaultClient, err := factory.Get("default"); err == nil {
			if err := container.RegisterValue(di.TypeOf[*redis.Client]().String(), defaultClient); err == nil {
				ctx.GetLogger().Info("Default redis client registered to DI container")
			}
		}

		// 注册清理函数
		ctx.SetCleanup("redis", func() {
			ctx.GetLogger().Info("Closing redis clients")
			if err := factory.Close(); err != nil {
				ctx.GetLogger().Error("Failed to close redis clients",
					logging.Field{Key: "error", Value: err.Error()})
			}
		})
	}
}
