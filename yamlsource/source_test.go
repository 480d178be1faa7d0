package yamlsource

import (
	"testing"

	"github.com/gocrud/container/di"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	DSN string
}

type testService struct {
	Repo    *testRepo
	Timeout int
	Label   string
	Cache   *testRepo
}

func newTestService(repo *testRepo) *testService {
	return &testService{Repo: repo}
}

func newRegistry() *TypeRegistry {
	r := NewTypeRegistry()
	RegisterType[*testRepo](r, "Repo")
	r.RegisterConstructor("Service", newTestService, "repo")
	return r
}

func TestSource_Load(t *testing.T) {
	src := New(newRegistry())

	defs, err := src.Load([]byte(`
services:
  repo:
    type: Repo
    properties:
      DSN: "file::memory:"
  userService:
    type: Service
    args: ["@repo"]
    properties:
      Timeout: 30
      Label: "\\@literal"
      Cache?: "@missing"
    lazyInit: true
`))
	require.NoError(t, err)
	require.Len(t, defs, 2)

	// 声明顺序保留
	assert.Equal(t, "repo", defs[0].Name)
	assert.Equal(t, "userService", defs[1].Name)

	repo := defs[0]
	assert.Equal(t, di.TypeOf[*testRepo](), repo.Type)
	require.Len(t, repo.Properties, 1)
	assert.Equal(t, "DSN", repo.Properties[0].Name)

	svc := defs[1]
	assert.True(t, svc.LazyInit)
	require.Len(t, svc.ConstructorArgs, 1)
	assert.Equal(t, di.RefTo("repo"), svc.ConstructorArgs[0].Value)

	require.Len(t, svc.Properties, 3)
	assert.Equal(t, "@literal", svc.Properties[1].Value)
	assert.Equal(t, "Cache", svc.Properties[2].Name)
	assert.True(t, svc.Properties[2].Optional)
	assert.Equal(t, di.RefTo("missing"), svc.Properties[2].Value)
}

func TestSource_Apply(t *testing.T) {
	c := di.New()
	src := New(newRegistry())

	err := src.Apply(c, []byte(`
services:
  repo:
    type: Repo
    properties:
      DSN: "file::memory:"
  userService:
    type: Service
    args: ["@repo"]
    properties:
      Timeout: 30
      Cache?: "@missing"
`))
	require.NoError(t, err)
	require.NoError(t, c.Build())

	svc, err := di.ResolveNamed[*testService](c, "userService")
	require.NoError(t, err)
	require.NotNil(t, svc.Repo)
	assert.Equal(t, "file::memory:", svc.Repo.DSN)
	assert.Equal(t, 30, svc.Timeout)
	assert.Nil(t, svc.Cache)

	// 单例共享同一个 repo
	repo, err := di.ResolveNamed[*testRepo](c, "repo")
	require.NoError(t, err)
	assert.Same(t, repo, svc.Repo)
}

func TestSource_NamedArg(t *testing.T) {
	c := di.New()
	src := New(newRegistry())

	err := src.Apply(c, []byte(`
services:
  repo:
    type: Repo
  userService:
    type: Service
    args:
      - name: repo
        value: "@repo"
`))
	require.NoError(t, err)

	svc, err := di.ResolveNamed[*testService](c, "userService")
	require.NoError(t, err)
	assert.NotNil(t, svc.Repo)
}

func TestSource_UnknownType(t *testing.T) {
	src := New(newRegistry())

	_, err := src.Load([]byte(`
services:
  bad:
    type: Nope
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestSource_Scopes(t *testing.T) {
	c := di.New()
	src := New(newRegistry())

	err := src.Apply(c, []byte(`
services:
  repo:
    type: Repo
    scope: prototype
`))
	require.NoError(t, err)

	a, err := di.ResolveNamed[*testRepo](c, "repo")
	require.NoError(t, err)
	b, err := di.ResolveNamed[*testRepo](c, "repo")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}
