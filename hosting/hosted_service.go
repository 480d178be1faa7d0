// Package hosting 托管服务的运行骨架：容器解析出的长驻服务
// 统一交给管理器并发启停，宿主只关心错误通道与优雅关闭。
package hosting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocrud/container/logging"
)

// HostedService 长驻服务。管理器在独立 goroutine 中调用 Start，
// 实现方不必自己起 goroutine。
type HostedService interface {
	// Start 阻塞运行，直到 ctx 取消或出错。
	Start(ctx context.Context) error

	// Stop 额外的清理动作。ctx 取消本身已要求 Start 退出，
	// Stop 只做 Start 覆盖不到的收尾。
	Stop(ctx context.Context) error
}

// HostedServiceManager 并发启停一组托管服务。
type HostedServiceManager struct {
	services []HostedService
	logger   logging.Logger
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewHostedServiceManager 创建管理器。
func NewHostedServiceManager(logger logging.Logger) *HostedServiceManager {
	return &HostedServiceManager{
		services: make([]HostedService, 0),
		logger:   logger,
	}
}

// Add 登记一个托管服务。
func (m *HostedServiceManager) Add(service HostedService) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services = append(m.services, service)
}

// StartAll 并发启动全部服务，每个服务独占一个 goroutine。
// 返回的通道汇集启动失败；容量等于服务数，生产侧不会阻塞。
func (m *HostedServiceManager) StartAll(ctx context.Context) <-chan error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	errCh := make(chan error, len(m.services))

	m.logger.Info("starting hosted services",
		logging.Field{Key: "count", Value: len(m.services)})

	for _, service := range m.services {
		m.wg.Add(1)
		go func(svc HostedService) {
			defer m.wg.Done()

			name := serviceName(svc)
			m.logger.Debug("hosted service starting",
				logging.Field{Key: "service", Value: name})

			if err := svc.Start(ctx); err != nil {
				// ctx 到期的退出是正常停机，不算错误
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					m.logger.Debug("hosted service stopped on context",
						logging.Field{Key: "service", Value: name})
				} else {
					m.logger.Error("hosted service failed",
						logging.Field{Key: "service", Value: name},
						logging.Field{Key: "error", Value: err.Error()})
					select {
					case errCh <- err:
					default:
					}
				}
				return
			}

			m.logger.Info("hosted service completed",
				logging.Field{Key: "service", Value: name})
		}(service)
	}

	return errCh
}

// StopAll 按登记反序并发停止全部服务，单个失败只记日志。
func (m *HostedServiceManager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	m.logger.Info("stopping hosted services",
		logging.Field{Key: "count", Value: len(m.services)})

	var wg sync.WaitGroup

	for i := len(m.services) - 1; i >= 0; i-- {
		service := m.services[i]

		wg.Add(1)
		go func(svc HostedService) {
			defer wg.Done()

			name := serviceName(svc)
			if err := svc.Stop(ctx); err != nil {
				m.logger.Error("hosted service stop failed",
					logging.Field{Key: "service", Value: name},
					logging.Field{Key: "error", Value: err.Error()})
			} else {
				m.logger.Debug("hosted service stopped",
					logging.Field{Key: "service", Value: name})
			}
		}(service)
	}

	wg.Wait()

	m.logger.Info("hosted services stopped")
	return nil
}

// Wait 等待全部 Start goroutine 退出。
func (m *HostedServiceManager) Wait() {
	m.wg.Wait()
}

func serviceName(svc HostedService) string {
	return fmt.Sprintf("%T", svc)
}

// BackgroundService 可嵌入的后台服务地基：提供停止信号与完成握手，
// 派生类型只需要在自己的循环里盯住 StopChan。
type BackgroundService struct {
	name   string
	logger logging.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewBackgroundService 创建后台服务。
func NewBackgroundService(name string, logger logging.Logger) *BackgroundService {
	return &BackgroundService{
		name:   name,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start 阻塞到停止信号或 ctx 取消。
func (s *BackgroundService) Start(ctx context.Context) error {
	s.logger.Info("background service starting",
		logging.Field{Key: "service", Value: s.name})

	select {
	case <-s.stopCh:
	case <-ctx.Done():
	}

	s.Done()
	return nil
}

// Stop 发出停止信号并等待完成握手，或 ctx 先到期。
func (s *BackgroundService) Stop(ctx context.Context) error {
	s.logger.Info("background service stopping",
		logging.Field{Key: "service", Value: s.name})
	close(s.stopCh)

	select {
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		s.logger.Warn("background service stop timed out",
			logging.Field{Key: "service", Value: s.name})
		return ctx.Err()
	}
}

// ShouldStop 报告停止信号是否已发出。
func (s *BackgroundService) ShouldStop() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// StopChan 返回停止通道，供派生类型在 select 中监听。
func (s *BackgroundService) StopChan() <-chan struct{} {
	return s.stopCh
}

// Done 标记服务收尾完成。幂等。
func (s *BackgroundService) Done() {
	select {
	case <-s.doneCh:
		return
	default:
		close(s.doneCh)
	}
}

// TimedHostedService 固定间隔执行任务的托管服务。
type TimedHostedService struct {
	*BackgroundService
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewTimedHostedService 创建定时托管服务。
func NewTimedHostedService(name string, interval time.Duration, task func(ctx context.Context) error, logger logging.Logger) *TimedHostedService {
	return &TimedHostedService{
		BackgroundService: NewBackgroundService(name, logger),
		interval:          interval,
		task:              task,
	}
}

// Start 以固定间隔循环执行任务，任务失败只记日志不中断循环。
func (s *TimedHostedService) Start(ctx context.Context) error {
	s.logger.Info("timed service running",
		logging.Field{Key: "service", Value: s.name},
		logging.Field{Key: "interval", Value: s.interval.String()})
	return s.run(ctx)
}

func (s *TimedHostedService) run(ctx context.Context) error {
	defer s.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.task(ctx); err != nil {
				s.logger.Error("timed task failed",
					logging.Field{Key: "service", Value: s.name},
					logging.Field{Key: "error", Value: err.Error()})
			}
		case <-s.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
