// Package yamlsource 从 YAML 文档加载服务定义。
// 文档格式：
//
//	services:
//	  userService:
//	    type: UserService
//	    scope: singleton
//	    dependsOn: [db]
//	    args:
//	      - "@userRepo"       # 服务引用
//	      - 30                # 字面值
//	    properties:
//	      Cache: "@cache"
//	      Timeout?: 5         # 可选属性，解析失败跳过
//	    initMethod: Init
//	    destroyMethod: Close
//
// 以 @ 开头的字符串值表示对另一个服务的按名引用；写字面 @ 用 \@ 转义。
// 类型名通过 TypeRegistry 解析，未登记的类型报错。
package yamlsource

import (
	"fmt"
	"os"
	"strings"

	"github.com/gocrud/container/di"
	"github.com/gocrud/container/logging"
	"gopkg.in/yaml.v3"
)

// Source YAML 定义源
type Source struct {
	registry *TypeRegistry
	logger   logging.Logger
}

// Option 配置 Source
type Option func(*Source)

// WithLogger 设置日志记录器
func WithLogger(logger logging.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

// New 创建 YAML 定义源
func New(registry *TypeRegistry, opts ...Option) *Source {
	s := &Source{registry: registry, logger: logging.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// document 顶层文档。services 用 yaml.Node 解码以保留声明顺序。
type document struct {
	Services yaml.Node `yaml:"services"`
}

// serviceSpec 单个服务条目
type serviceSpec struct {
	Type           string      `yaml:"type"`
	Scope          string      `yaml:"scope"`
	Abstract       bool        `yaml:"abstract"`
	Parent         string      `yaml:"parent"`
	LazyInit       bool        `yaml:"lazyInit"`
	Primary        bool        `yaml:"primary"`
	DependsOn      []string    `yaml:"dependsOn"`
	Autowire       string      `yaml:"autowire"`
	FactoryService string      `yaml:"factoryService"`
	FactoryMethod  string      `yaml:"factoryMethod"`
	Args           []yaml.Node `yaml:"args"`
	Properties     yaml.Node   `yaml:"properties"`
	InitMethod     string      `yaml:"initMethod"`
	DestroyMethod  string      `yaml:"destroyMethod"`
}

// Load 解析 YAML 文本为服务定义列表，保持文档中的声明顺序
func (s *Source) Load(data []byte) ([]*di.ServiceDefinition, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("yamlsource: failed to parse document: %w", err)
	}

	if doc.Services.Kind == 0 {
		return nil, nil
	}
	if doc.Services.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("yamlsource: 'services' must be a mapping")
	}

	var defs []*di.ServiceDefinition
	content := doc.Services.Content
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value

		var spec serviceSpec
		if err := content[i+1].Decode(&spec); err != nil {
			return nil, fmt.Errorf("yamlsource: invalid entry '%s': %w", name, err)
		}

		def, err := s.buildDefinition(name, &spec)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// LoadFile 从文件加载服务定义
func (s *Source) LoadFile(path string) ([]*di.ServiceDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("yamlsource: failed to read %s: %w", path, err)
	}
	return s.Load(data)
}

// Apply 把 YAML 文本中的全部定义注册进容器
func (s *Source) Apply(c *di.Container, data []byte) error {
	defs, err := s.Load(data)
	if err != nil {
		return err
	}
	for _, def := range defs {
		if err := c.Register(def); err != nil {
			return err
		}
		s.logger.Debug("yaml definition registered",
			logging.Field{Key: "name", Value: def.Name})
	}
	return nil
}

// ApplyFile 把文件中的全部定义注册进容器
func (s *Source) ApplyFile(c *di.Container, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("yamlsource: failed to read %s: %w", path, err)
	}
	return s.Apply(c, data)
}

func (s *Source) buildDefinition(name string, spec *serviceSpec) (*di.ServiceDefinition, error) {
	def := &di.ServiceDefinition{
		Name:           name,
		Scope:          spec.Scope,
		Abstract:       spec.Abstract,
		Parent:         spec.Parent,
		LazyInit:       spec.LazyInit,
		Primary:        spec.Primary,
		DependsOn:      spec.DependsOn,
		FactoryService: spec.FactoryService,
		FactoryMethod:  spec.FactoryMethod,
		InitMethod:     spec.InitMethod,
		DestroyMethod:  spec.DestroyMethod,
	}

	if spec.Type != "" {
		t, err := s.registry.Lookup(spec.Type)
		if err != nil {
			return nil, fmt.Errorf("yamlsource: service '%s': %w", name, err)
		}
		def.Type = t
		def.Constructors = s.registry.Constructors(spec.Type)
	}

	switch spec.Autowire {
	case "", "no":
		def.AutowireMode = di.AutowireNo
	case "byName":
		def.AutowireMode = di.AutowireByName
	case "byType":
		def.AutowireMode = di.AutowireByType
	case "constructor":
		def.AutowireMode = di.AutowireConstructor
	default:
		return nil, fmt.Errorf("yamlsource: service '%s': unknown autowire mode '%s'", name, spec.Autowire)
	}

	for idx, node := range spec.Args {
		arg, err := decodeArg(name, idx, &node)
		if err != nil {
			return nil, err
		}
		def.ConstructorArgs = append(def.ConstructorArgs, arg)
	}

	props, err := decodeProperties(name, &spec.Properties)
	if err != nil {
		return nil, err
	}
	def.Properties = props

	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// decodeArg 解析一个 args 条目。标量直接作为通用参数；
// 映射形式支持 index/name/value 字段。
func decodeArg(service string, idx int, node *yaml.Node) (di.ArgValue, error) {
	if node.Kind == yaml.MappingNode {
		var spec struct {
			Index *int      `yaml:"index"`
			Name  string    `yaml:"name"`
			Value yaml.Node `yaml:"value"`
		}
		if err := node.Decode(&spec); err != nil {
			return di.ArgValue{}, fmt.Errorf("yamlsource: service '%s': invalid arg %d: %w", service, idx, err)
		}
		value, err := decodeValue(service, &spec.Value)
		if err != nil {
			return di.ArgValue{}, err
		}
		arg := di.ArgValue{Index: -1, Name: spec.Name, Value: value}
		if spec.Index != nil {
			arg.Index = *spec.Index
		}
		return arg, nil
	}

	value, err := decodeValue(service, node)
	if err != nil {
		return di.ArgValue{}, err
	}
	return di.GenericArg(value), nil
}

// decodeProperties 解析 properties 映射。键尾的 ? 标记可选属性。
func decodeProperties(service string, node *yaml.Node) ([]di.PropertyValue, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("yamlsource: service '%s': 'properties' must be a mapping", service)
	}

	var props []di.PropertyValue
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		optional := strings.HasSuffix(key, "?")
		if optional {
			key = strings.TrimSuffix(key, "?")
		}

		value, err := decodeValue(service, node.Content[i+1])
		if err != nil {
			return nil, err
		}
		props = append(props, di.PropertyValue{Name: key, Value: value, Optional: optional})
	}
	return props, nil
}

// decodeValue 解析标量或嵌套值。@name 形式的字符串转为服务引用，
// \@ 转义为字面 @。
func decodeValue(service string, node *yaml.Node) (any, error) {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return nil, fmt.Errorf("yamlsource: service '%s': invalid value: %w", service, err)
	}

	if str, ok := raw.(string); ok {
		switch {
		case strings.HasPrefix(str, "\\@"):
			return str[1:], nil
		case strings.HasPrefix(str, "@"):
			ref := strings.TrimPrefix(str, "@")
			if ref == "" {
				return nil, fmt.Errorf("yamlsource: service '%s': empty service reference", service)
			}
			return di.RefTo(ref), nil
		}
	}
	return raw, nil
}
