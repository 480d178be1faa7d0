package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocrud/container/config"
	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
)

// ConfigLoadOptions 配置加载选项
type ConfigLoadOptions struct {
	Paths     []string
	HotReload bool
}

// ConfigLoadOption 配置加载选项函数
type ConfigLoadOption func(*ConfigLoadOptions)

// WithHotReload 启用热重载
func WithHotReload() ConfigLoadOption {
	return func(o *ConfigLoadOptions) {
		o.HotReload = true
	}
}

// WithConfigFile 加载配置文件并注册到运行时
// 支持 YAML, JSON (按扩展名选择解析器，默认 YAML)
func WithConfigFile(path string, opts ...ConfigLoadOption) Option {
	return func(rt *Runtime) error {
		options := &ConfigLoadOptions{
			Paths: []string{path},
		}
		for _, opt := range opts {
			opt(options)
		}

		builder := config.NewConfigurationBuilder()
		for _, p := range options.Paths {
			if strings.HasSuffix(p, ".json") {
				builder.AddJsonFile(p, true)
			} else {
				builder.AddYamlFile(p, true)
			}
		}
		builder.AddEnvironmentVariables("")

		cfg, err := builder.BuildReloadable()
		if err != nil {
			return fmt.Errorf("config: failed to build configuration: %w", err)
		}

		// 注册 Configuration 到 DI 容器
		if err := rt.Container.RegisterValue(di.TypeOf[config.Configuration]().String(), cfg); err != nil {
			return err
		}

		// 注册为 Runtime Feature
		rt.Features.Set(cfg)

		// 如果启用了热重载，启动监听
		if options.HotReload {
			rt.Lifecycle.OnStart(func(ctx context.Context) error {
				for _, source := range builder.GetSources() {
					ws, ok := source.(config.WatchableSource)
					if !ok {
						continue
					}
					if err := ws.StartWatch(ctx, func() {
						if err := cfg.Reload(); err != nil {
							rt.ErrorHandler(fmt.Errorf("config: reload failed: %w", err))
						}
					}); err != nil {
						rt.ErrorHandler(fmt.Errorf("config: watch %s failed: %w", source.Name(), err))
					}
				}
				return nil
			})
			rt.Lifecycle.OnStop(func(ctx context.Context) error {
				for _, source := range builder.GetSources() {
					if ws, ok := source.(config.WatchableSource); ok {
						ws.StopWatch()
					}
				}
				return nil
			})
		}

		return nil
	}
}

// BindConfig 将配置节绑定到结构体并注册到 DI 容器
func BindConfig[T any](rt *Runtime, section string) error {
	return rt.Invoke(func(cfg config.Configuration, logger logging.Logger) error {
		var settings T
		if err := cfg.Bind(section, &settings); err != nil {
			return fmt.Errorf("config: failed to bind section '%s': %w", section, err)
		}

		logger.Debug("config section bound",
			logging.Field{Key: "section", Value: section})

		// 注册为单例
		return rt.Provide(&settings)
	})
}
