package di

import "sort"

// dependencyGraph 依赖图簿记：两张邻接表互为镜像。
// 它是 (a) 循环引用检测 (b) 销毁排序 (c) 裸引用一致性检查的唯一事实来源。
type dependencyGraph struct {
	// dependentsOf[x] = 依赖 x 的服务集合
	dependentsOf map[string]map[string]struct{}
	// dependenciesOf[x] = x 依赖的服务集合
	dependenciesOf map[string]map[string]struct{}
}

func newDependencyGraph() *dependencyGraph {
	return &dependencyGraph{
		dependentsOf:   make(map[string]map[string]struct{}),
		dependenciesOf: make(map[string]map[string]struct{}),
	}
}

// addEdge 记录 dependent 依赖 name。
func (g *dependencyGraph) addEdge(name, dependent string) {
	if name == dependent {
		return
	}
	set, ok := g.dependentsOf[name]
	if !ok {
		set = make(map[string]struct{})
		g.dependentsOf[name] = set
	}
	set[dependent] = struct{}{}

	rev, ok := g.dependenciesOf[dependent]
	if !ok {
		rev = make(map[string]struct{})
		g.dependenciesOf[dependent] = rev
	}
	rev[name] = struct{}{}
}

// dependents 返回直接依赖者，排序保证确定性。
func (g *dependencyGraph) dependents(name string) []string {
	return sortedKeys(g.dependentsOf[name])
}

// dependencies 返回直接依赖，排序保证确定性。
func (g *dependencyGraph) dependencies(name string) []string {
	return sortedKeys(g.dependenciesOf[name])
}

// isDependent 报告 dependent 是否传递地依赖 name。
func (g *dependencyGraph) isDependent(name, dependent string, seen map[string]struct{}) bool {
	if seen != nil {
		if _, ok := seen[name]; ok {
			return false
		}
	}
	set, ok := g.dependentsOf[name]
	if !ok {
		return false
	}
	if _, ok := set[dependent]; ok {
		return true
	}
	if seen == nil {
		seen = make(map[string]struct{})
	}
	seen[name] = struct{}{}
	for transitive := range set {
		if g.isDependent(transitive, dependent, seen) {
			return true
		}
	}
	return false
}

// removeNode 将节点从两张表中摘除。
func (g *dependencyGraph) removeNode(name string) {
	for dep := range g.dependenciesOf[name] {
		delete(g.dependentsOf[dep], name)
	}
	for dependent := range g.dependentsOf[name] {
		delete(g.dependenciesOf[dependent], name)
	}
	delete(g.dependentsOf, name)
	delete(g.dependenciesOf, name)
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
