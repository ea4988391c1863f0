package scheduler

import (
	"context"

	"github.com/fleettools/coordinator/ent/sortie"
	"github.com/fleettools/coordinator/pkg/coreerrors"
)

// ValidateDAG performs a topological sort over a mission's sorties and
// rejects cyclic dependency graphs with CyclicDependency (§4.6 "the
// scheduler validates this by a topological sort on entry").
func (s *Service) ValidateDAG(ctx context.Context, missionID string) error {
	rows, err := s.client.Sortie.Query().Where(sortie.MissionIDEQ(missionID)).All(ctx)
	if err != nil {
		return coreerrors.Wrap(coreerrors.KindStoreUnavail, err, "failed to load sorties for DAG validation")
	}

	indegree := make(map[string]int, len(rows))
	dependents := make(map[string][]string, len(rows))
	for _, r := range rows {
		if _, ok := indegree[r.ID]; !ok {
			indegree[r.ID] = 0
		}
		for _, dep := range r.Dependencies {
			indegree[r.ID]++
			dependents[dep] = append(dependents[dep], r.ID)
		}
	}

	queue := make([]string, 0, len(rows))
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if visited != len(indegree) {
		return coreerrors.Wrap(coreerrors.KindCyclic, coreerrors.ErrCyclicDependency,
			"mission sortie dependency graph contains a cycle")
	}
	return nil
}
