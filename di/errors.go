package di

import (
	"errors"
	"fmt"
	"strings"
)

// DefinitionError 定义缺失、抽象或不合法。
type DefinitionError struct {
	Name   string
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("di: invalid definition %q: %s", e.Name, e.Reason)
}

// NotFoundError 按名或按类型找不到任何定义。
type NotFoundError struct {
	Name string
	Type string
}

func (e *NotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("di: no service named %q", e.Name)
	}
	return fmt.Sprintf("di: no service of type %s", e.Type)
}

// CurrentlyInCreationError 非法的重入构造。
// 单例自引用且无法通过早期引用化解，或原型循环引用时报出。
type CurrentlyInCreationError struct {
	Name string
	// Chain 触发时的依赖链，用于报告完整的环。
	Chain []string
}

func (e *CurrentlyInCreationError) Error() string {
	if len(e.Chain) > 0 {
		return fmt.Sprintf("di: service %q is currently in creation, unresolvable circular reference: %s",
			e.Name, strings.Join(e.Chain, " -> "))
	}
	return fmt.Sprintf("di: service %q is currently in creation, unresolvable circular reference", e.Name)
}

// UnsatisfiedDependencyError 无法满足某个注入点。
type UnsatisfiedDependencyError struct {
	// Name 正在创建的服务名。
	Name string
	// InjectionPoint 注入点描述（字段名或参数位置）。
	InjectionPoint string
	Cause          error
}

func (e *UnsatisfiedDependencyError) Error() string {
	msg := fmt.Sprintf("di: unsatisfied dependency of service %q at %s", e.Name, e.InjectionPoint)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *UnsatisfiedDependencyError) Unwrap() error { return e.Cause }

// AmbiguousResolutionError 严格模式下多个同样合适的候选。
type AmbiguousResolutionError struct {
	Name       string
	Candidates []string
}

func (e *AmbiguousResolutionError) Error() string {
	return fmt.Sprintf("di: ambiguous resolution for %q among candidates [%s]",
		e.Name, strings.Join(e.Candidates, ", "))
}

// CreationError 创建管线中任意失败的统一包装，携带服务名。
type CreationError struct {
	Name     string
	Resource string
	Cause    error
}

func (e *CreationError) Error() string {
	msg := fmt.Sprintf("di: error creating service %q", e.Name)
	if e.Resource != "" {
		msg += " defined in " + e.Resource
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *CreationError) Unwrap() error { return e.Cause }

// newCreationError 包装创建失败；已经是 CreationError 的不再嵌套。
func newCreationError(name, resource string, cause error) error {
	var ce *CreationError
	if errors.As(cause, &ce) && ce.Name == name {
		return cause
	}
	return &CreationError{Name: name, Resource: resource, Cause: cause}
}

// InconsistentReferenceError 裸引用与包装后引用不一致。
// 循环解析期间其他服务拿到了未包装的早期引用，而最终暴露对象已被替换。
type InconsistentReferenceError struct {
	Name       string
	Dependents []string
}

func (e *InconsistentReferenceError) Error() string {
	return fmt.Sprintf("di: service %q was injected in raw form into [%s] but has since been wrapped; "+
		"mark dependents lazy or disable the consistency check",
		e.Name, strings.Join(e.Dependents, ", "))
}

// ConversionError 类型转换服务无法完成转换。
type ConversionError struct {
	Value  any
	Target string
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("di: cannot convert %T to %s: %s", e.Value, e.Target, e.Reason)
}
