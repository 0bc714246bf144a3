// Package depgraph turns per-declaration evidence into @Dep annotations and
// detects reference cycles. It is strictly evidence-driven: references that
// do not resolve against the declared site set are reported and dropped,
// never guessed at.
package depgraph

import (
	"fmt"
	"sort"

	"sdslc/internal/diag"
	"sdslc/internal/model"
	"sdslc/internal/ref"
)

// Site is one declaration site plus its evidence-derived reference lists.
type Site struct {
	Kind         ref.Kind
	RelID        string
	InternalRefs []ref.InternalRef
	ContractRefs []ref.ContractRef
	SSOTRefs     []ref.SSOTRef
}

// Key is the site's "Kind.RELID" graph-node key.
func (s Site) Key() string {
	return string(s.Kind) + "." + s.RelID
}

// Result is the outcome of a dependency build: the deps to emit and the
// cycles found in the resolved internal-reference graph.
type Result struct {
	Deps   []model.Dep
	Cycles [][]string
}

// Build resolves every site's evidence against the declared site set and
// produces one Dep per surviving target. Unresolved references,
// self-references and duplicate targets are diagnosed and dropped. Cycles in
// the internal-reference graph are reported, one record per distinct cycle,
// and never broken.
func Build(sites []Site) (*Result, []diag.Record) {
	declared := make(map[string]bool, len(sites))
	for _, s := range sites {
		declared[s.Key()] = true
	}

	var recs []diag.Record
	res := &Result{}
	adj := make(map[string][]string)

	for i, site := range sites {
		if len(site.InternalRefs) == 0 && len(site.ContractRefs) == 0 {
			continue
		}
		path := fmt.Sprintf("/sites/%d", i)
		from := ref.InternalRef{Kind: site.Kind, RelID: site.RelID}

		seen := make(map[string]bool)
		var targets []model.DepTarget
		for _, r := range site.InternalRefs {
			key := string(r.Kind) + "." + r.RelID
			switch {
			case !declared[key]:
				recs = append(recs, diag.Errorf(diag.CodeRefUnresolved, path,
					"declared site", r.String(), "reference target %s is not declared", key))
			case key == site.Key():
				recs = append(recs, diag.Errorf(diag.CodeRefSelf, path,
					"", r.String(), "site %s references itself", site.Key()))
			case seen[r.String()]:
				recs = append(recs, diag.Errorf(diag.CodeRefDuplicate, path,
					"", r.String(), "duplicate reference target %s", r.String()))
			default:
				seen[r.String()] = true
				targets = append(targets, model.TargetInternal(r))
				adj[site.Key()] = append(adj[site.Key()], key)
			}
		}
		for _, c := range site.ContractRefs {
			if seen[string(c)] {
				recs = append(recs, diag.Errorf(diag.CodeRefDuplicate, path,
					"", string(c), "duplicate reference target %s", c))
				continue
			}
			seen[string(c)] = true
			targets = append(targets, model.TargetContract(c))
		}

		sort.Slice(targets, func(a, b int) bool { return targets[a].String() < targets[b].String() })
		for _, target := range targets {
			res.Deps = append(res.Deps, model.Dep{
				DepID: model.DepID(from.String(), target.String()),
				Bind:  from,
				From:  from,
				To:    target,
				SSOT:  append([]ref.SSOTRef(nil), site.SSOTRefs...),
			})
		}
	}

	res.Cycles = findCycles(sites, adj)
	for _, cycle := range res.Cycles {
		recs = append(recs, diag.Warnf(diag.CodeCycle, "/deps",
			"reference cycle: %v", cycle))
	}
	return res, recs
}

// findCycles runs an iterative depth-first traversal with an explicit
// recursion stack over the resolved internal-reference edges. Each back edge
// yields one cycle, expressed as the node path from the first visited cycle
// member back to itself.
func findCycles(sites []Site, adj map[string][]string) [][]string {
	type stackEntry struct {
		node string
		next int
	}

	visited := make(map[string]bool)
	var cycles [][]string

	for _, site := range sites {
		start := site.Key()
		if visited[start] {
			continue
		}

		onStack := make(map[string]int)
		stack := []stackEntry{{node: start}}
		onStack[start] = 0
		visited[start] = true

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			neighbors := adj[top.node]
			if top.next >= len(neighbors) {
				delete(onStack, top.node)
				stack = stack[:len(stack)-1]
				continue
			}
			next := neighbors[top.next]
			top.next++

			if pos, ok := onStack[next]; ok {
				cycle := make([]string, 0, len(stack)-pos+1)
				for _, entry := range stack[pos:] {
					cycle = append(cycle, entry.node)
				}
				cycle = append(cycle, next)
				cycles = append(cycles, cycle)
				continue
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			onStack[next] = len(stack)
			stack = append(stack, stackEntry{node: next})
		}
	}
	return cycles
}
