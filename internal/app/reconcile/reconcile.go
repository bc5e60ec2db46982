// Package reconcile diffs a desired set of plans (declared in source files or
// an API payload) against stored plans, keyed by name, and applies
// create/update/delete actions to converge the store.
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	core "github.com/griffin-open-source/griffin-sub001/internal/app/core/service"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
	"github.com/griffin-open-source/griffin-sub001/internal/app/metrics"
)

// Store is the subset of a Plan store the reconciler needs.
type Store interface {
	GetByKey(ctx context.Context, key plan.Key) (*plan.Plan, error)
	Create(ctx context.Context, p plan.Plan) (*plan.Plan, error)
	Update(ctx context.Context, p plan.Plan) (*plan.Plan, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]plan.Plan, error)
}

// ActionKind is the diff result for one plan key.
type ActionKind string

const (
	ActionNone   ActionKind = "NONE"
	ActionCreate ActionKind = "CREATE"
	ActionUpdate ActionKind = "UPDATE"
	ActionDelete ActionKind = "DELETE"
)

// Action is one planned convergence step.
type Action struct {
	Kind    ActionKind
	Key     plan.Key
	Desired *plan.Plan
	Current *plan.Plan
}

// Result summarizes a reconciliation pass.
type Result struct {
	Actions []Action
	Applied int
	DryRun  bool
}

// Diff computes the actions required to converge the store's plans onto
// desired, keyed by (organization, project, environment, name). Plans
// present in the store but absent from desired are scheduled for deletion;
// this only considers plans already returned by Store.List, so callers that
// want reconciliation scoped to a subset (e.g. one project) should filter
// desired and rely on a Store.List that is pre-scoped the same way.
func Diff(ctx context.Context, store Store, desired []plan.Plan) ([]Action, error) {
	existing, err := store.List(ctx)
	if err != nil {
		return nil, err
	}

	existingByKey := make(map[plan.Key]plan.Plan, len(existing))
	for _, p := range existing {
		existingByKey[p.Key()] = p
	}

	seen := make(map[plan.Key]bool, len(desired))
	var actions []Action

	for _, d := range desired {
		key := d.Key()
		seen[key] = true
		current, ok := existingByKey[key]
		if !ok {
			desiredCopy := d
			actions = append(actions, Action{Kind: ActionCreate, Key: key, Desired: &desiredCopy})
			continue
		}
		if contentHash(current) == contentHash(d) {
			actions = append(actions, Action{Kind: ActionNone, Key: key})
			continue
		}
		desiredCopy, currentCopy := d, current
		desiredCopy.ID = current.ID
		actions = append(actions, Action{Kind: ActionUpdate, Key: key, Desired: &desiredCopy, Current: &currentCopy})
	}

	for _, p := range existing {
		if !seen[p.Key()] {
			current := p
			actions = append(actions, Action{Kind: ActionDelete, Key: p.Key(), Current: &current})
		}
	}

	sort.Slice(actions, func(i, j int) bool { return actionSortKey(actions[i].Key) < actionSortKey(actions[j].Key) })
	return actions, nil
}

// Apply executes actions against store. When dryRun is true, no mutation
// happens and Result.Applied stays 0.
func Apply(ctx context.Context, store Store, actions []Action, dryRun bool) Result {
	result := Result{Actions: actions, DryRun: dryRun}
	if dryRun {
		return result
	}

	hooks := metrics.ReconcileApplyHooks()
	for _, a := range actions {
		complete := core.StartObservation(ctx, hooks, map[string]string{"kind": string(a.Kind)})
		err := applyOne(ctx, store, a)
		complete(err)
		if err == nil && a.Kind != ActionNone {
			result.Applied++
		}
	}
	return result
}

func applyOne(ctx context.Context, store Store, a Action) error {
	switch a.Kind {
	case ActionCreate:
		_, err := store.Create(ctx, *a.Desired)
		return err
	case ActionUpdate:
		_, err := store.Update(ctx, *a.Desired)
		return err
	case ActionDelete:
		return store.Delete(ctx, a.Current.ID)
	default:
		return nil
	}
}

func actionSortKey(k plan.Key) string {
	return k.Organization + "/" + k.Project + "/" + k.Environment + "/" + k.Name
}

// contentHash computes a stable hash of a plan's declarative content
// (everything except server-assigned identity and timestamps), so two plans
// that differ only in ID/CreatedAt/UpdatedAt/LastStartedAt compare equal.
func contentHash(p plan.Plan) string {
	comparable := struct {
		Organization string        `json:"organization"`
		Project      string        `json:"project"`
		Environment  string        `json:"environment"`
		Name         string        `json:"name"`
		Version      string        `json:"version"`
		Frequency    plan.Frequency `json:"frequency"`
		Locations    []string      `json:"locations"`
		Nodes        []plan.Node   `json:"nodes"`
		Edges        []plan.Edge   `json:"edges"`
	}{
		Organization: p.Organization,
		Project:      p.Project,
		Environment:  p.Environment,
		Name:         p.Name,
		Version:      p.Version,
		Frequency:    p.Frequency,
		Locations:    sortedCopy(p.Locations),
		Nodes:        p.Nodes,
		Edges:        p.Edges,
	}

	// encoding/json already serializes struct fields in declaration order and
	// map keys in sorted order, which is what makes this a stable
	// serialization for hashing purposes; only slice order (Locations)
	// needed normalizing above.
	encoded, _ := json.Marshal(comparable)
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
