package etcd

import (
	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Configure 返回 Etcd 配置器
// 使用示例: builder.Configure(etcd.Configure(func(b *etcd.Builder) { ... }))
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder(ctx)
		if options != nil {
			options(builder)
		}

		// 构建 etcd factory
		factory, err := builder.Build(ctx.GetLogger())
		if err != nil {
			ctx.GetLogger().Fatal("Failed to build etcd clients",
				logging.Field{Key: "error", Value: err.Error()})
		}
		if factory == nil {
			return
		}

		container := ctx.GetContainer()

		// 注册 factory 到容器
		if err := container.RegisterValue(di.TypeOf[*EtcdClientFactory]().String(), factory); err != nil {
			ctx.GetLogger().Error("Failed to register etcd factory",
				logging.Field{Key: "error", Value: err.Error()})
		}

		// 命名客户端按名字登记，供 di 标签与 ResolveNamed 使用
		factory.Each(func(name string, client *clientv3.Client) {
			if err := container.RegisterValue(name, client); err != nil {
				ctx.GetLogger().Error("Failed to register etcd client",
					logging.Field{Key: "name", Value: name},
					logging.Field{Key: "error", Value: err.Error()})
			}
		})

		// 如果有默认客户端，再按类型名登记一份
		if defaultClient, err := factory.Get("default"); err == nil {
			if err := container.RegisterValue(di.TypeOf[*clientv3.Client]().String(), defaultClient); err == nil {
				ctx.GetLogger().Info("Default etcd client registered to DI container")
			}
		}

		// 注册清理函数
		ctx.SetCleanup("etcd", func() {
			ctx.GetLogger().Info("Closing etcd clients")
			if err := factory.Close(); err != nil {
				ctx.GetLogger().Error("Failed to close etcd clients",
					logging.Field{Key: "error", Value: err.Error()})
			}
		})
	}
}
