package runner

import (
	"math/rand/v2"
	"strconv"

	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/framework"
)

type plannedCase struct {
	tc *framework.TestCase
	// enumerated cases carry exactly one row whose name is already applied
	enumerated bool
}

func (pc plannedCase) rows() []framework.Row {
	if len(pc.tc.Rows) == 0 {
		return []framework.Row{{}}
	}
	return pc.tc.Rows
}

func (pc plannedCase) displayName(row framework.Row) string {
	if pc.enumerated {
		return pc.tc.DisplayName
	}
	return pc.tc.RowDisplayName(row)
}

type collectionPlan struct {
	id    string
	name  string
	cases []plannedCase
}

type assemblyPlan struct {
	asm         *framework.Assembly
	collections []*collectionPlan
}

func (p *assemblyPlan) caseCount() int {
	n := 0
	for _, c := range p.collections {
		n += len(c.cases)
	}
	return n
}

// plan filters an assembly's cases and groups them into collections.
// Collections keep first-seen order and are then shuffled by seed; cases keep
// declaration order within their collection.
func (r *Runner) plan(asm *framework.Assembly, seed int) *assemblyPlan {
	p := &assemblyPlan{asm: asm}
	index := make(map[string]*collectionPlan)

	preEnumerate := r.cfg.GetPreEnumerateTheories()
	for _, tc := range asm.Cases {
		if !r.cfg.Filters.Match(tc.Target()) {
			continue
		}

		var planned []plannedCase
		if preEnumerate && len(tc.Rows) > 0 {
			for _, c := range tc.Enumerate(asm.Path) {
				if r.requested(c) {
					planned = append(planned, plannedCase{tc: c, enumerated: true})
				}
			}
		} else if r.requested(tc) {
			planned = []plannedCase{{tc: tc}}
		}
		if len(planned) == 0 {
			continue
		}

		name := tc.CollectionName()
		coll, ok := index[name]
		if !ok {
			coll = &collectionPlan{
				id:   uuid.NewSHA1(uuid.NameSpaceOID, []byte(asm.ID+"\x00"+name)).String(),
				name: name,
			}
			index[name] = coll
			p.collections = append(p.collections, coll)
		}
		coll.cases = append(coll.cases, planned...)
	}

	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
	rng.Shuffle(len(p.collections), func(i, j int) {
		p.collections[i], p.collections[j] = p.collections[j], p.collections[i]
	})
	return p
}

// requested reports whether tc is in the host's case id list, if any
func (r *Runner) requested(tc *framework.TestCase) bool {
	if r.caseIDs == nil {
		return true
	}
	_, ok := r.caseIDs[tc.ID]
	return ok
}

type parallelism struct {
	// threads is the worker budget; -1 means unbounded
	threads    int
	aggressive bool
}

func (p parallelism) describe() string {
	if p.threads < 0 {
		return "unlimited"
	}
	return strconv.Itoa(p.threads)
}

func (r *Runner) parallelism() parallelism {
	if r.cfg.GetParallel() == config.ParallelNone {
		return parallelism{threads: 1}
	}
	return parallelism{
		threads:    r.cfg.GetMaxThreads(r.cpus),
		aggressive: r.cfg.GetParallelAlgorithm() == config.AlgorithmAggressive,
	}
}
