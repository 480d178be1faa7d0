package mongodb

import (
	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	"github.com/gocrud/mgo"
)

// Configure 返回 MongoDB 配置器
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		builder := NewBuilder(ctx)
		if options != nil {
			options(builder)
		}

		factory, err := builder.Build(ctx.GetLogger())
		if err != nil {
			ctx.GetLogger().Fatal("Failed to build mongodb clients",
				logging.Field{Key: "error", Value: err.Error()})
		}
		if factory == nil {
			return
		}

		container := ctx.GetContainer()

		// 注册 Factory
		if err := container.RegisterValue(di.TypeOf[*MongoFactory]().String(), factory); err != nil {
			ctx.GetLogger().Error("Failed to register mongo factory",
				logging.Field{Key: "error", Value: err.Error()})
		}

		// 注册 Client 实例
		factory.Each(func(name string, client *mgo.Client) {
			if err := container.RegisterValue(name, client); err != nil {
				ctx.GetLogger().Error("Failed to register mongo client",
					logging.Field{Key: "name", Value: name},
					logging.Field{Key: "error", Value: err.Error()})
				return
			}
			ctx.GetLogger().Info("Mongo client registered to DI",
				logging.Field{Key: "name", Value: name})

			// 默认实例兼容性
			if name == "default" {
				if err := container.RegisterValue(di.TypeOf[*mgo.Client]().String(), client); err == nil {
					ctx.GetLogger().Info("Default mongo client registered to DI (unnamed)")
				}
			}
		})

		// 注册清理
		ctx.SetCleanup("mongodb", func() {
			ctx.GetLogger().Info("Closing mongo clients")
			if err := factory.Close(); err != nil {
				ctx.GetLogger().Error("Failed to close mongo clients",
					logging.Field{Key: "error", Value: err.Error()})
			}
		})
	}
}
