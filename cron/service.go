// Package cron 把 robfig/cron 调度器包成容器的托管服务：
// 任务先登记为待定定义，Start 时统一编排——需要依赖的处理函数
// 由容器在触发时解析实参。
package cron

import (
	"context"
	"fmt"
	"sync"

	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	"github.com/robfig/cron/v3"
)

// jobDefinition 待编排的任务：表达式 + 名字 + 处理函数。
type jobDefinition struct {
	spec    string
	name    string
	handler any
}

// service 调度器托管服务。生命周期跟随宿主：Start 编排全部待定任务
// 并启动调度循环，Stop 等排空后返回。
type service struct {
	cron      *cron.Cron
	logger    logging.Logger
	mu        sync.RWMutex
	jobs      map[string]cron.EntryID
	jobDefs   []jobDefinition
	container *di.Container
}

// options 调度器配置。
type options struct {
	// Location 时区，默认 UTC
	Location string
	// EnableSeconds 秒级精度（默认分钟级）
	EnableSeconds bool
	// Logger 自定义日志
	Logger logging.Logger
	// EnableCronLogger 透出 cron 库自身的调度日志（默认关）
	EnableCronLogger bool
}

func newService(logger logging.Logger, opts ...func(*options)) *service {
	opt := &options{
		Location:         "UTC",
		EnableSeconds:    false,
		Logger:           logger,
		EnableCronLogger: false,
	}

	for _, o := range opts {
		o(opt)
	}
	if opt.Logger == nil {
		opt.Logger = logging.Nop()
	}

	cronOpts := []cron.Option{}

	if opt.EnableCronLogger {
		cronOpts = append(cronOpts, cron.WithLogger(newCronLogger(opt.Logger)))
	}

	// 任务 panic 只打日志，不拖垮调度循环
	cronOpts = append(cronOpts, cron.WithChain(
		cron.Recover(newCronLogger(opt.Logger)),
	))

	if opt.EnableSeconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}

	return &service{
		cron:   cron.New(cronOpts...),
		logger: opt.Logger,
		jobs:   make(map[string]cron.EntryID),
	}
}

// addJob 挂载一个已就绪的任务函数。
// spec 是 cron 表达式，如 "0 */5 * * * *"（每 5 分钟）。
func (s *service) addJob(spec, name string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("job started", logging.Field{Key: "job", Value: name})
		defer s.logger.Info("job completed", logging.Field{Key: "job", Value: name})
		job()
	})

	if err != nil {
		return fmt.Errorf("cron: register job %q: %w", name, err)
	}

	s.jobs[name] = entryID
	s.logger.Info("job registered",
		logging.Field{Key: "job", Value: name},
		logging.Field{Key: "spec", Value: spec})
	return nil
}

// removeJob 摘除任务，不存在时为空操作。
func (s *service) removeJob(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger.Info("job removed", logging.Field{Key: "job", Value: name})
	}
}

// Inject 交接容器与日志。须在 Start 之前完成，调度器的日志
// 在构造时已定型，之后不再跟随替换。
func (s *service) Inject(container *di.Container, logger logging.Logger) {
	s.container = container
	if logger != nil {
		s.logger = logger
	}
}

// Start 编排全部待定任务并启动调度循环。
func (s *service) Start(ctx context.Context) error {
	s.logger.Info("cron service starting",
		logging.Field{Key: "pending", Value: len(s.jobDefs)})

	for _, job := range s.jobDefs {
		var handlerFunc func()

		switch h := job.handler.(type) {
		case func():
			handlerFunc = h
		default:
			// 带参处理函数：触发时由容器解析实参
			if s.container == nil {
				return fmt.Errorf("cron: job %q needs argument resolution but no container was injected", job.name)
			}

			wrapped, err := wrapHandlerWithDI(s.container, s.logger, h)
			if err != nil {
				return fmt.Errorf("cron: wrap job %q: %w", job.name, err)
			}
			handlerFunc = wrapped
		}

		if err := s.addJob(job.spec, job.name, handlerFunc); err != nil {
			return err
		}
	}

	s.jobDefs = nil

	s.cron.Start()
	return nil
}

// Stop 停止调度并等待在途任务排空，或 ctx 先到期。
func (s *service) Stop(ctx context.Context) error {
	s.logger.Info("cron service stopping")

	stopCtx := s.cron.Stop()

	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger 把框架日志适配成 cron 库的日志接口。
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, convertToFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := convertToFields(keysAndValues)
	fields = append(fields, logging.Field{Key: "error", Value: err.Error()})
	l.logger.Error(msg, fields...)
}

func convertToFields(keysAndValues []interface{}) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		if i+1 < len(keysAndValues) {
			key := fmt.Sprintf("%v", keysAndValues[i])
			value := keysAndValues[i+1]
			fields = append(fields, logging.Field{Key: key, Value: value})
		}
	}
	return fields
}
