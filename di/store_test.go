package di

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stConn struct {
	Host    string
	Port    int
	Verbose bool
}

type stPool struct{}

func TestStoreRegisterRejectsDuplicates(t *testing.T) {
	s := NewDefinitionStore()
	require.NoError(t, s.Register(NewDefinition("conn", WithType[*stConn]())))

	err := s.Register(NewDefinition("conn", WithType[*stConn]()))
	var de *DefinitionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "conn", de.Name)
}

func TestStoreRegisterValidates(t *testing.T) {
	s := NewDefinitionStore()

	assert.Error(t, s.Register(NewDefinition("")), "空名非法")
	assert.Error(t, s.Register(NewDefinition("bare")), "无类型无构造方式非法")
	assert.Error(t, s.Register(NewDefinition("badctor",
		WithConstructor(nil))), "构造候选必须是函数")
	assert.Error(t, s.Register(&ServiceDefinition{
		Name:          "orphanFactory",
		FactoryMethod: "New",
	}), "工厂方法缺工厂服务")

	// 仅有父定义引用的定义合法：类型等从父链继承
	assert.NoError(t, s.Register(NewDefinition("child", WithParent("base"))))
}

func TestStoreAlias(t *testing.T) {
	s := NewDefinitionStore()
	require.NoError(t, s.Register(NewDefinition("conn", WithType[*stConn]())))
	require.NoError(t, s.RegisterAlias("db", "conn"))
	require.NoError(t, s.RegisterAlias("primary", "db"))

	assert.Equal(t, "conn", s.canonical("primary"), "别名链解析到定义名")
	assert.True(t, s.Contains("primary"))

	def, err := s.Get("db")
	require.NoError(t, err)
	assert.Equal(t, "conn", def.Name)

	// 同名冲突
	assert.Error(t, s.RegisterAlias("conn", "other"), "别名不可与定义名冲突")
	assert.Error(t, s.RegisterAlias("db", "elsewhere"), "别名不可重绑定")
	assert.NoError(t, s.RegisterAlias("db", "conn"), "重复注册同一绑定幂等")
	assert.Error(t, s.Register(NewDefinition("db", WithType[*stConn]())),
		"定义名不可占用已有别名")
}

func TestStoreAliasCycleTerminates(t *testing.T) {
	s := NewDefinitionStore()
	require.NoError(t, s.RegisterAlias("a", "b"))
	require.NoError(t, s.RegisterAlias("b", "a"))

	// 环上限截断，不死循环
	_ = s.canonical("a")
}

func TestStoreParentMerge(t *testing.T) {
	s := NewDefinitionStore()
	require.NoError(t, s.Register(NewDefinition("connBase",
		WithAbstract(),
		WithType[*stConn](),
		WithLazyInit(),
		WithProperty("Host", "localhost"),
		WithProperty("Port", 5432))))
	require.NoError(t, s.Register(NewDefinition("replicaConn",
		WithParent("connBase"),
		WithProperty("Port", 5433))))

	m, err := s.GetMerged("replicaConn")
	require.NoError(t, err)

	assert.Equal(t, "replicaConn", m.Name)
	assert.False(t, m.Abstract, "抽象标记不继承")
	assert.True(t, m.LazyInit, "父定义声明的行为保留")
	assert.Equal(t, TypeOf[*stConn](), m.Type)

	// 属性按名覆盖：Host 继承，Port 被子定义覆盖
	props := map[string]any{}
	for _, p := range m.Properties {
		props[p.Name] = p.Value
	}
	assert.Equal(t, "localhost", props["Host"])
	assert.Equal(t, 5433, props["Port"])
}

func TestStoreGrandparentChain(t *testing.T) {
	s := NewDefinitionStore()
	require.NoError(t, s.Register(NewDefinition("root",
		WithAbstract(),
		WithType[*stConn](),
		WithProperty("Host", "root-host"),
		WithProperty("Verbose", true))))
	require.NoError(t, s.Register(NewDefinition("mid",
		WithAbstract(),
		WithParent("root"),
		WithProperty("Host", "mid-host"))))
	require.NoError(t, s.Register(NewDefinition("leaf",
		WithParent("mid"),
		WithProperty("Port", 1234))))

	m, err := s.GetMerged("leaf")
	require.NoError(t, err)

	props := map[string]any{}
	for _, p := range m.Properties {
		props[p.Name] = p.Value
	}
	assert.Equal(t, "mid-host", props["Host"], "较近的祖先覆盖较远的")
	assert.Equal(t, true, props["Verbose"])
	assert.Equal(t, 1234, props["Port"])
}

func TestStoreParentCycle(t *testing.T) {
	s := NewDefinitionStore()
	require.NoError(t, s.Register(NewDefinition("a", WithParent("b"))))
	require.NoError(t, s.Register(NewDefinition("b", WithParent("a"))))

	_, err := s.GetMerged("a")
	var de *DefinitionError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Reason, "cycle")
}

func TestStoreMergedArgOverride(t *testing.T) {
	s := NewDefinitionStore()
	require.NoError(t, s.Register(NewDefinition("base",
		WithAbstract(),
		WithType[*stConn](),
		WithIndexedArg(0, "tcp"),
		WithNamedArg("timeout", 30))))
	require.NoError(t, s.Register(NewDefinition("child",
		WithParent("base"),
		WithIndexedArg(0, "unix"),
		WithConstructorArg("extra"))))

	m, err := s.GetMerged("child")
	require.NoError(t, err)
	require.Len(t, m.ConstructorArgs, 3)

	byIndex := map[int]any{}
	byName := map[string]any{}
	for _, a := range m.ConstructorArgs {
		if a.Index >= 0 {
			byIndex[a.Index] = a.Value
		} else if a.Name != "" {
			byName[a.Name] = a.Value
		}
	}
	assert.Equal(t, "unix", byIndex[0], "同索引被子定义覆盖")
	assert.Equal(t, 30, byName["timeout"])
}

func TestStoreMarkStaleInvalidatesChildren(t *testing.T) {
	s := NewDefinitionStore()
	require.NoError(t, s.Register(NewDefinition("base",
		WithAbstract(),
		WithType[*stConn](),
		WithProperty("Host", "v1"))))
	require.NoError(t, s.Register(NewDefinition("child", WithParent("base"))))

	m1, err := s.GetMerged("child")
	require.NoError(t, err)

	m2, err := s.GetMerged("child")
	require.NoError(t, err)
	assert.Same(t, m1, m2, "合并结果缓存")

	s.MarkStale("base")
	m3, err := s.GetMerged("child")
	require.NoError(t, err)
	assert.NotSame(t, m1, m3, "父定义失效连带子定义缓存")
}

func TestStoreRemove(t *testing.T) {
	s := NewDefinitionStore()
	require.NoError(t, s.Register(NewDefinition("conn", WithType[*stConn]())))
	require.Contains(t, s.Names(), "conn")

	s.Remove("conn")
	assert.False(t, s.Contains("conn"))
	assert.NotContains(t, s.Names(), "conn")

	// 腾出的名字可重新注册
	assert.NoError(t, s.Register(NewDefinition("conn", WithType[*stConn]())))
}

func TestStoreNamesForType(t *testing.T) {
	s := NewDefinitionStore()
	require.NoError(t, s.Register(NewDefinition("conn", WithType[*stConn]())))
	require.NoError(t, s.Register(NewDefinition("pool", WithType[*stPool]())))
	require.NoError(t, s.Register(NewDefinition("absConn",
		WithAbstract(), WithType[*stConn]())))
	require.NoError(t, s.Register(NewDefinition("inferred",
		WithConstructor(func() *stConn { return &stConn{} }))))

	names := s.NamesForType(reflect.TypeOf((*stConn)(nil)))
	assert.Equal(t, []string{"conn", "inferred"}, names,
		"注册顺序；抽象定义与异类不参与")
}

func TestStoreTypeMatchesInterface(t *testing.T) {
	s := NewDefinitionStore()
	require.NoError(t, s.Register(NewDefinition("store",
		WithConstructor(func() *stCloser { return &stCloser{} }))))

	iface := reflect.TypeOf((*interface{ Close() error })(nil)).Elem()
	assert.Equal(t, []string{"store"}, s.NamesForType(iface))
}

type stCloser struct{}

func (*stCloser) Close() error { return nil }
