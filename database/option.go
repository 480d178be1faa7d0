package database

import (
	"context"
	"fmt"

	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"gorm.io/gorm"
)

// BuilderOption 用于配置 Database Builder
type BuilderOption func(*Builder)

// WithDatabase 添加数据库配置
func WithDatabase(name string, dialector gorm.Dialector, opts ...func(*DatabaseOptions)) BuilderOption {
	return func(b *Builder) {
		// 将变长参数转换为单个配置函数
		var configure func(*DatabaseOptions)
		if len(opts) > 0 {
			configure = func(o *DatabaseOptions) {
				for _, opt := range opts {
					opt(o)
				}
			}
		}
		b.Add(name, dialector, configure)
	}
}

// New 启用数据库能力
func New(opts ...BuilderOption) core.Option {
	return func(rt *core.Runtime) error {
		builder := NewBuilder()
		for _, opt := range opts {
			opt(builder)
		}

		// 构建工厂：打开连接、配置连接池、执行自动迁移
		factory, err := builder.Build(rt.Container.Logger())
		if err != nil {
			return err
		}
		if factory == nil {
			return nil
		}

		// 注册工厂到 DI
		if err := rt.Container.RegisterValue(di.TypeOf[*DatabaseFactory]().String(), factory); err != nil {
			return err
		}

		// 命名实例按名字登记；default 再按类型名登记一份
		var regErr error
		factory.Each(func(name string, db *gorm.DB) {
			if err := rt.Container.RegisterValue(name, db); err != nil {
				regErr = err
			}
			if name == "default" {
				if err := rt.Container.RegisterValue(di.TypeOf[*gorm.DB]().String(), db); err != nil {
					regErr = err
				}
			}
		})
		if regErr != nil {
			return fmt.Errorf("database: failed to register instance: %w", regErr)
		}

		// 注册清理钩子
		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			return factory.Close()
		})

		return nil
	}
}
