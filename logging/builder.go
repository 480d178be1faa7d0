package logging

import "io"

// LoggingBuilder 日志系统构建器
type LoggingBuilder struct {
	minimumLevel LogLevel
	providers    []LoggerProvider
}

// NewLoggingBuilder 创建日志构建器
func NewLoggingBuilder() *LoggingBuilder {
	return &LoggingBuilder{minimumLevel: LogLevelInfo}
}

// SetMinimumLevel 设置最低日志级别
func (b *LoggingBuilder) SetMinimumLevel(level LogLevel) *LoggingBuilder {
	b.minimumLevel = level
	return b
}

// AddConsole 添加文本格式的控制台输出
func (b *LoggingBuilder) AddConsole() *LoggingBuilder {
	b.providers = append(b.providers, NewConsoleLoggerProvider(ConsoleLoggerOptions{}))
	return b
}

// AddJSONConsole 添加 JSON 格式的控制台输出
func (b *LoggingBuilder) AddJSONConsole() *LoggingBuilder {
	b.providers = append(b.providers, NewConsoleLoggerProvider(ConsoleLoggerOptions{
		Formatter: &JSONFormatter{},
	}))
	return b
}

// AddWriter 添加任意 io.Writer 输出
func (b *LoggingBuilder) AddWriter(w io.Writer, formatter Formatter) *LoggingBuilder {
	b.providers = append(b.providers, NewConsoleLoggerProvider(ConsoleLoggerOptions{
		Output:    w,
		Formatter: formatter,
	}))
	return b
}

// AddProvider 添加自定义提供者
func (b *LoggingBuilder) AddProvider(p LoggerProvider) *LoggingBuilder {
	b.providers = append(b.providers, p)
	return b
}

// NewLogger 创建一个默认的控制台 Logger，便于测试和小工具使用
func NewLogger() Logger {
	return NewLoggingBuilder().AddConsole().Build().CreateLogger("app")
}

// Build 构建日志工厂
func (b *LoggingBuilder) Build() LoggerFactory {
	providers := b.providers
	if len(providers) == 0 {
		providers = []LoggerProvider{NewConsoleLoggerProvider(ConsoleLoggerOptions{})}
	}
	f := NewLoggerFactory(providers...)
	f.SetMinimumLevel(b.minimumLevel)
	return f
}
