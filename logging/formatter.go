package logging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Formatter 日志格式化器
type Formatter interface {
	Format(level LogLevel, category, msg string, fields []Field) string
}

// TextFormatter 文本格式化器
type TextFormatter struct {
	// TimestampFormat 时间戳格式，空值使用 time.RFC3339
	TimestampFormat string
	// DisableTimestamp 不输出时间戳
	DisableTimestamp bool
}

func (f *TextFormatter) Format(level LogLevel, category, msg string, fields []Field) string {
	var b strings.Builder
	if !f.DisableTimestamp {
		layout := f.TimestampFormat
		if layout == "" {
			layout = time.RFC3339
		}
		b.WriteString(time.Now().Format(layout))
		b.WriteByte(' ')
	}
	b.WriteString(fmt.Sprintf("[%s]", level))
	if category != "" {
		b.WriteString(" " + category + ":")
	}
	b.WriteString(" " + msg)
	for _, field := range fields {
		b.WriteString(fmt.Sprintf(" %s=%v", field.Key, field.Value))
	}
	return b.String()
}

// JSONFormatter JSON 格式化器
type JSONFormatter struct{}

func (f *JSONFormatter) Format(level LogLevel, category, msg string, fields []Field) string {
	entry := map[string]any{
		"time":    time.Now().Format(time.RFC3339),
		"level":   level.String(),
		"message": msg,
	}
	if category != "" {
		entry["category"] = category
	}
	for _, field := range fields {
		entry[field.Key] = field.Value
	}
	data, err := json.Marshal(entry)
	if err != nil {
		// 字段里有无法序列化的值，退化为文本
		return (&TextFormatter{}).Format(level, category, msg, fields)
	}
	return string(data)
}
