package di

import (
	"reflect"
	"testing"
)

type benchRepo struct{}

type benchService struct {
	Repo *benchRepo `di:""`
}

func benchContainer(b *testing.B) *Container {
	b.Helper()
	c := New()
	if err := c.Register(NewDefinition("repo",
		WithConstructor(func() *benchRepo { return &benchRepo{} }))); err != nil {
		b.Fatal(err)
	}
	if err := c.Register(NewDefinition("service",
		WithConstructor(func() *benchService { return &benchService{} }))); err != nil {
		b.Fatal(err)
	}
	return c
}

func BenchmarkSingletonGet(b *testing.B) {
	c := benchContainer(b)
	if _, err := c.Get("service"); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Get("service"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSingletonGetParallel(b *testing.B) {
	c := benchContainer(b)
	if _, err := c.Get("service"); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := c.Get("service"); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkPrototypeGet(b *testing.B) {
	c := New()
	if err := c.Register(NewDefinition("service",
		WithPrototype(),
		WithConstructor(func(repo *benchRepo) *benchService { return &benchService{Repo: repo} }))); err != nil {
		b.Fatal(err)
	}
	if err := c.Register(NewDefinition("repo",
		WithConstructor(func() *benchRepo { return &benchRepo{} }))); err != nil {
		b.Fatal(err)
	}
	// 首次创建固化构造计划，基准测量计划命中路径
	if _, err := c.Get("service"); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.Get("service"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkGetByType(b *testing.B) {
	c := benchContainer(b)
	typ := reflect.TypeOf((*benchService)(nil))
	if _, err := c.GetByType(typ); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := c.GetByType(typ); err != nil {
			b.Fatal(err)
		}
	}
}
