package database

import (
	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	"gorm.io/gorm"
)

// Configure 返回数据库配置器
func Configure(options func(*Builder)) core.Configurator {
	return func(ctx *core.BuildContext) {
		// 注入 Context
		builder := NewBuilder(ctx)
		if options != nil {
			options(builder)
		}

		factory, err := builder.Build(ctx.GetLogger())
		if err != nil {
			ctx.GetLogger().Fatal("Failed to build databases",
				logging.Field{Key: "error", Value: err.Error()})
		}
		if factory == nil {
			return
		}

		container := ctx.GetContainer()

		// 注册工厂
		if err := container.RegisterValue(di.TypeOf[*DatabaseFactory]().String(), factory); err != nil {
			ctx.GetLogger().Error("Failed to register database factory",
				logging.Field{Key: "error", Value: err.Error()})
		}

		// 注册所有实例
		factory.Each(func(name string, db *gorm.DB) {
			if err := container.RegisterValue(name, db); err != nil {
				ctx.GetLogger().Error("Failed to register database",
					logging.Field{Key: "name", Value: name},
					logging.Field{Key: "error", Value: err.Error()})
				return
			}
			ctx.GetLogger().Info("Database client registered to DI",
				logging.Field{Key: "name", Value: name})

			// 默认实例兼容性
			if name == "default" {
				if err := container.RegisterValue(di.TypeOf[*gorm.DB]().String(), db); err == nil {
					ctx.GetLogger().Info("Default database registered to DI (unnamed)")
				}
			}
		})

		// 注册清理
		ctx.SetCleanup("database", func() {
			ctx.GetLogger().Info("Closing database connections")
			if err := factory.Close(); err != nil {
				ctx.GetLogger().Error("Failed to close databases",
					logging.Field{Key: "error", Value: err.Error()})
			}
		})
	}
}
