package di

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ctrRepo struct {
	dsn string
}

func newCtrRepo() *ctrRepo {
	return &ctrRepo{dsn: "memory"}
}

type ctrService struct {
	Repo *ctrRepo
}

func newCtrService(repo *ctrRepo) *ctrService {
	return &ctrService{Repo: repo}
}

func TestContainerRegisterAndGet(t *testing.T) {
	c := New()

	require.NoError(t, c.Register(NewDefinition("repo",
		WithType[*ctrRepo](),
		WithConstructor(newCtrRepo))))
	require.NoError(t, c.Register(NewDefinition("service",
		WithType[*ctrService](),
		WithConstructor(newCtrService))))

	assert.True(t, c.Contains("repo"))
	assert.False(t, c.Contains("missing"))

	obj, err := c.Get("service")
	require.NoError(t, err)
	svc := obj.(*ctrService)
	require.NotNil(t, svc.Repo)

	// 单例：重复解析返回同一实例，依赖共享
	again, err := c.Get("service")
	require.NoError(t, err)
	assert.Same(t, obj, again)

	repo, err := c.Get("repo")
	require.NoError(t, err)
	assert.Same(t, svc.Repo, repo)
}

func TestContainerGetNotFound(t *testing.T) {
	c := New()
	_, err := c.Get("nobody")

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "nobody", nf.Name)
}

func TestContainerRegisterValue(t *testing.T) {
	c := New()
	repo := &ctrRepo{dsn: "handmade"}
	require.NoError(t, c.RegisterValue("repo", repo))

	obj, err := c.Get("repo")
	require.NoError(t, err)
	assert.Same(t, repo, obj)

	// 值注册参与按类型解析
	byType, err := c.GetByType(reflect.TypeOf((*ctrRepo)(nil)))
	require.NoError(t, err)
	assert.Same(t, repo, byType)

	assert.Error(t, c.RegisterValue("nil", nil))
}

func TestContainerRegisterValueWithDestroy(t *testing.T) {
	c := New()
	var closed bool
	require.NoError(t, c.RegisterValueWithDestroy("repo", &ctrRepo{}, func() error {
		closed = true
		return nil
	}))

	c.Close()
	assert.True(t, closed)
}

func TestContainerAlias(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(NewDefinition("repo",
		WithType[*ctrRepo](),
		WithConstructor(newCtrRepo))))
	require.NoError(t, c.RegisterAlias("dataSource", "repo"))

	direct, err := c.Get("repo")
	require.NoError(t, err)
	aliased, err := c.Get("dataSource")
	require.NoError(t, err)
	assert.Same(t, direct, aliased)

	assert.True(t, c.Contains("dataSource"))
}

func TestContainerPrototypeScope(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(NewDefinition("repo",
		WithType[*ctrRepo](),
		WithConstructor(newCtrRepo),
		WithPrototype())))

	a, err := c.Get("repo")
	require.NoError(t, err)
	b, err := c.Get("repo")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestContainerBuild(t *testing.T) {
	c := New()
	var eager, lazy atomic.Int32

	require.NoError(t, c.Register(NewDefinition("eager",
		WithSupplier(func() (any, error) {
			eager.Add(1)
			return &ctrRepo{}, nil
		}))))
	require.NoError(t, c.Register(NewDefinition("lazy",
		WithLazyInit(),
		WithSupplier(func() (any, error) {
			lazy.Add(1)
			return &ctrRepo{}, nil
		}))))
	require.NoError(t, c.Register(NewDefinition("proto",
		WithPrototype(),
		WithSupplier(func() (any, error) { return &ctrRepo{}, nil }))))

	require.NoError(t, c.Build())

	assert.Equal(t, int32(1), eager.Load(), "非延迟单例在 Build 阶段预实例化")
	assert.Equal(t, int32(0), lazy.Load(), "延迟单例跳过")

	// Build 幂等：已缓存的单例不再重建
	require.NoError(t, c.Build())
	assert.Equal(t, int32(1), eager.Load())
}

func TestContainerConcurrentSingletonCreatedOnce(t *testing.T) {
	c := New()
	var created atomic.Int32

	require.NoError(t, c.Register(NewDefinition("repo",
		WithSupplier(func() (any, error) {
			created.Add(1)
			return &ctrRepo{}, nil
		}))))

	const workers = 64
	results := make([]any, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get("repo")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
	}

	assert.Equal(t, int32(1), created.Load(), "并发解析同一单例只构造一次")
	for i := 1; i < workers; i++ {
		assert.Same(t, results[0], results[i])
	}
}

func TestContainerGetWithArgs(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(NewDefinition("repo",
		WithType[*ctrRepo](),
		WithPrototype(),
		WithConstructor(func(dsn string) *ctrRepo { return &ctrRepo{dsn: dsn} }))))

	obj, err := c.GetWithArgs("repo", "postgres://localhost")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost", obj.(*ctrRepo).dsn)

	// 元数不符的显式参数直接失败
	_, err = c.GetWithArgs("repo", "a", "b")
	var unsat *UnsatisfiedDependencyError
	assert.ErrorAs(t, err, &unsat)
}

func TestContainerInvoke(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(NewDefinition("repo",
		WithType[*ctrRepo](),
		WithConstructor(newCtrRepo))))

	var got *ctrRepo
	require.NoError(t, c.Invoke(func(repo *ctrRepo) {
		got = repo
	}))
	require.NotNil(t, got)

	wantErr := errors.New("boom")
	err := c.Invoke(func(repo *ctrRepo) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)

	assert.Error(t, c.Invoke(42), "非函数参数")
}

func TestContainerCustomScope(t *testing.T) {
	c := New()
	scope := NewSimpleScope()
	require.NoError(t, c.RegisterScope("request", scope))

	assert.Error(t, c.RegisterScope(ScopeSingleton, scope), "内建作用域不可覆盖")

	var created atomic.Int32
	require.NoError(t, c.Register(NewDefinition("repo",
		WithScope("request"),
		WithSupplier(func() (any, error) {
			created.Add(1)
			return &ctrRepo{}, nil
		}))))

	a, err := c.Get("repo")
	require.NoError(t, err)
	b, err := c.Get("repo")
	require.NoError(t, err)
	assert.Same(t, a, b, "同一作用域周期内复用实例")
	assert.Equal(t, int32(1), created.Load())

	// 作用域结束后重新创建
	scope.Close()
	d, err := c.Get("repo")
	require.NoError(t, err)
	assert.NotSame(t, a, d)
	assert.Equal(t, int32(2), created.Load())

	_, err = c.Get("unknownScoped")
	assert.Error(t, err)

	require.NoError(t, c.Register(NewDefinition("orphan",
		WithScope("session"),
		WithSupplier(func() (any, error) { return &ctrRepo{}, nil }))))
	_, err = c.Get("orphan")
	var de *DefinitionError
	assert.ErrorAs(t, err, &de, "未注册的作用域名")
}

func TestContainerDestructionOrder(t *testing.T) {
	c := New()
	var order []string

	require.NoError(t, c.Register(NewDefinition("repo",
		WithType[*ctrRepo](),
		WithConstructor(newCtrRepo),
		WithDestroyFn(func(any) error {
			order = append(order, "repo")
			return nil
		}))))
	require.NoError(t, c.Register(NewDefinition("service",
		WithType[*ctrService](),
		WithConstructor(newCtrService),
		WithDestroyFn(func(any) error {
			order = append(order, "service")
			return nil
		}))))

	_, err := c.Get("service")
	require.NoError(t, err)

	c.Close()
	require.Equal(t, []string{"service", "repo"}, order, "依赖者先于被依赖者销毁")

	// Close 幂等
	c.Close()
	assert.Len(t, order, 2)
}

func TestContainerDependsOn(t *testing.T) {
	c := New()
	var order []string

	require.NoError(t, c.Register(NewDefinition("migrations",
		WithSupplier(func() (any, error) {
			order = append(order, "migrations")
			return &ctrRepo{}, nil
		}))))
	require.NoError(t, c.Register(NewDefinition("server",
		WithDependsOn("migrations"),
		WithSupplier(func() (any, error) {
			order = append(order, "server")
			return &ctrService{}, nil
		}))))

	_, err := c.Get("server")
	require.NoError(t, err)
	assert.Equal(t, []string{"migrations", "server"}, order)
}

func TestContainerCreationFailureRollback(t *testing.T) {
	c := New()
	boom := errors.New("dial failed")
	attempts := 0

	require.NoError(t, c.Register(NewDefinition("repo",
		WithSupplier(func() (any, error) {
			attempts++
			if attempts == 1 {
				return nil, boom
			}
			return &ctrRepo{}, nil
		}))))

	_, err := c.Get("repo")
	require.Error(t, err)
	var ce *CreationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "repo", ce.Name)
	assert.ErrorIs(t, err, boom)

	// 失败不留下毒化缓存，下一次解析重新尝试
	obj, err := c.Get("repo")
	require.NoError(t, err)
	assert.NotNil(t, obj)
	assert.Equal(t, 2, attempts)
}

func TestContainerCreationPanicRollback(t *testing.T) {
	c := New()
	attempts := 0

	require.NoError(t, c.Register(NewDefinition("flaky",
		WithSupplier(func() (any, error) {
			attempts++
			if attempts == 1 {
				panic("connection pool exploded")
			}
			return &ctrRepo{}, nil
		}))))

	_, err := c.Get("flaky")
	require.Error(t, err)
	var ce *CreationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "flaky", ce.Name)
	assert.Contains(t, err.Error(), "panic during creation")

	// panic 与普通错误一样完整回滚：在创建标记不残留
	assert.False(t, c.Registry().InCreation("flaky"))

	obj, err := c.Get("flaky")
	require.NoError(t, err)
	assert.NotNil(t, obj)
	assert.Equal(t, 2, attempts)
}

func TestContainerAbstractDefinition(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(NewDefinition("base",
		WithAbstract(),
		WithType[*ctrService](),
		WithProperty("Repo", RefTo("repo")))))

	_, err := c.Get("base")
	var de *DefinitionError
	require.ErrorAs(t, err, &de)
}

func TestContainerGetAll(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(NewDefinition("primaryRepo",
		WithType[*ctrRepo](),
		WithConstructor(newCtrRepo))))
	require.NoError(t, c.Register(NewDefinition("replicaRepo",
		WithType[*ctrRepo](),
		WithConstructor(newCtrRepo))))

	all, err := c.GetAll(reflect.TypeOf((*ctrRepo)(nil)))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Contains(t, all, "primaryRepo")
	assert.Contains(t, all, "replicaRepo")
	assert.NotSame(t, all["primaryRepo"], all["replicaRepo"])
}

func TestContainerMarkStale(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(NewDefinition("defaults",
		WithAbstract(),
		WithType[*ctrRepo](),
		WithProperty("dsn", "old"))))
	require.NoError(t, c.Register(NewDefinition("repo",
		WithParent("defaults"),
		WithPrototype(),
		WithConstructor(func() *ctrRepo { return &ctrRepo{} }))))

	_, err := c.Get("repo")
	// dsn 非导出字段不可设置，属性必填失败
	require.Error(t, err)

	// 修正父定义后刷新缓存再解析
	c.Store().Remove("defaults")
	require.NoError(t, c.Register(NewDefinition("defaults",
		WithAbstract(),
		WithType[*ctrRepo]())))
	c.MarkStale("repo")

	obj, err := c.Get("repo")
	require.NoError(t, err)
	assert.NotNil(t, obj)
}

func TestContainerSupplierPriority(t *testing.T) {
	c := New()
	fromSupplier := &ctrRepo{dsn: "supplier"}
	require.NoError(t, c.Register(NewDefinition("repo",
		WithType[*ctrRepo](),
		WithSupplier(func() (any, error) { return fromSupplier, nil }),
		WithConstructor(newCtrRepo))))

	obj, err := c.Get("repo")
	require.NoError(t, err)
	assert.Same(t, fromSupplier, obj, "Supplier 优先于构造候选")
}

func TestContainerFactoryMethod(t *testing.T) {
	c := New()
	require.NoError(t, c.Register(NewDefinition("factory",
		WithType[*ctrRepoFactory](),
		WithConstructor(func() *ctrRepoFactory { return &ctrRepoFactory{prefix: "f"} }))))
	require.NoError(t, c.Register(NewDefinition("repo",
		WithFactoryMethod("factory", "NewRepo"))))

	obj, err := c.Get("repo")
	require.NoError(t, err)
	assert.Equal(t, "f-repo", obj.(*ctrRepo).dsn)
}

type ctrRepoFactory struct {
	prefix string
}

func (f *ctrRepoFactory) NewRepo() *ctrRepo {
	return &ctrRepo{dsn: fmt.Sprintf("%s-repo", f.prefix)}
}
