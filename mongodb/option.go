package mongodb

import (
	"context"
	"fmt"

	"github.com/gocrud/container/core"
	"github.com/gocrud/container/di"
	"github.com/gocrud/mgo"
)

// BuilderOption 用于配置 MongoDB Builder
type BuilderOption func(*Builder)

// WithClient 添加 MongoDB 客户端配置
func WithClient(name string, uri string, opts ...func(*MongoOptions)) BuilderOption {
	return func(b *Builder) {
		var configure func(*MongoOptions)
		if len(opts) > 0 {
			configure = func(o *MongoOptions) {
				for _, opt := range opts {
					opt(o)
				}
			}
		}
		b.Add(name, uri, configure)
	}
}

// New 启用 MongoDB 能力
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

		// 注册 Factory
		if err := rt.Container.RegisterValue(di.TypeOf[*MongoFactory]().String(), factory); err != nil {
			return err
		}

		// 命名客户端按名字登记；default 再按类型名登记一份
		var regErr error
		factory.Each(func(name string, client *mgo.Client) {
			if err := rt.Container.RegisterValue(name, client); err != nil {
				regErr = err
			}
			if name == "default" {
				if err := rt.Container.RegisterValue(di.TypeOf[*mgo.Client]().String(), client); err != nil {
					regErr = err
				}
			}
		})
		if regErr != nil {
			return fmt.Errorf("mongodb: failed to register instance: %w", regErr)
		}

		// 注册清理
		rt.Lifecycle.OnStop(func(ctx context.Context) error {
			return factory.Close()
		})

		return nil
	}
}
