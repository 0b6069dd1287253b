package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/redbco/redb-apphost/pkg/appmodel"
)

// dependencies returns the resources r must be started after: wait targets,
// its parent and referenced resources.
func dependencies(r appmodel.Resource) []appmodel.Resource {
	var deps []appmodel.Resource
	seen := make(map[appmodel.Resource]bool)
	add := func(d appmodel.Resource) {
		if d == nil || d == r || seen[d] {
			return
		}
		seen[d] = true
		deps = append(deps, d)
	}

	if p, ok := r.(appmodel.ResourceWithParent); ok {
		add(p.Parent())
	}
	for _, w := range appmodel.AnnotationsOf[*appmodel.WaitAnnotation](r) {
		add(w.Resource)
	}
	for _, rel := range appmodel.AnnotationsOf[*appmodel.RelationshipAnnotation](r) {
		if rel.Type == appmodel.RelationshipParent || rel.Type == appmodel.RelationshipReference {
			add(rel.Resource)
		}
	}
	return deps
}

// levels groups resources so every resource comes after all of its
// dependencies. Order inside a level follows the input order. Dependencies
// outside the input set are ignored.
func levels(resources []appmodel.Resource) ([][]appmodel.Resource, error) {
	index := make(map[appmodel.Resource]int, len(resources))
	for i, r := range resources {
		index[r] = i
	}

	indegree := make([]int, len(resources))
	dependents := make([][]int, len(resources))
	for i, r := range resources {
		for _, d := range dependencies(r) {
			j, ok := index[d]
			if !ok {
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	var (
		out     [][]appmodel.Resource
		current []int
		placed  int
	)
	for i := range resources {
		if indegree[i] == 0 {
			current = append(current, i)
		}
	}

	for len(current) > 0 {
		level := make([]appmodel.Resource, 0, len(current))
		var next []int
		for _, i := range current {
			level = append(level, resources[i])
			placed++
			for _, j := range dependents[i] {
				indegree[j]--
				if indegree[j] == 0 {
					next = append(next, j)
				}
			}
		}
		sort.Ints(next)
		out = append(out, level)
		current = next
	}

	if placed != len(resources) {
		var cyclic []string
		for i, r := range resources {
			if indegree[i] > 0 {
				cyclic = append(cyclic, r.Name())
			}
		}
		return nil, fmt.Errorf("dependency cycle between resources: %s", strings.Join(cyclic, ", "))
	}
	return out, nil
}
