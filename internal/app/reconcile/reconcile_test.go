package reconcile

import (
	"context"
	"testing"

	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
	"github.com/griffin-open-source/griffin-sub001/internal/app/storage/memory"
)

func basePlan(name string) plan.Plan {
	return plan.Plan{
		Organization: "acme",
		Project:      "web",
		Environment:  "prod",
		Name:         name,
		Version:      "1.0",
		Frequency:    plan.Frequency{Every: 5, Unit: plan.FrequencyMinute},
		Nodes: []plan.Node{
			{Type: plan.NodeWait, Wait: &plan.WaitNode{ID: "w1", DurationMs: 10}},
		},
		Edges: []plan.Edge{
			{From: plan.StartSentinel, To: "w1"},
			{From: "w1", To: plan.EndSentinel},
		},
	}
}

func TestDiffProducesCreateForNewPlan(t *testing.T) {
	store := memory.NewPlanStore()
	ctx := context.Background()

	actions, err := Diff(ctx, store, []plan.Plan{basePlan("checkout")})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(actions) != 1 || actions[0].Kind != ActionCreate {
		t.Fatalf("expected 1 CREATE action, got %+v", actions)
	}

	result := Apply(ctx, store, actions, false)
	if result.Applied != 1 {
		t.Fatalf("expected 1 applied action, got %d", result.Applied)
	}

	stored, err := store.GetByKey(ctx, basePlan("checkout").Key())
	if err != nil {
		t.Fatalf("GetByKey: %v", err)
	}
	if stored.Name != "checkout" {
		t.Fatalf("expected stored plan, got %+v", stored)
	}
}

func TestDiffProducesNoneForUnchangedPlan(t *testing.T) {
	store := memory.NewPlanStore()
	ctx := context.Background()
	store.Create(ctx, basePlan("checkout"))

	actions, err := Diff(ctx, store, []plan.Plan{basePlan("checkout")})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(actions) != 1 || actions[0].Kind != ActionNone {
		t.Fatalf("expected NONE action for unchanged plan, got %+v", actions)
	}
}

func TestDiffProducesUpdateForChangedContent(t *testing.T) {
	store := memory.NewPlanStore()
	ctx := context.Background()
	store.Create(ctx, basePlan("checkout"))

	changed := basePlan("checkout")
	changed.Version = "2.0"

	actions, err := Diff(ctx, store, []plan.Plan{changed})
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(actions) != 1 || actions[0].Kind != ActionUpdate {
		t.Fatalf("expected UPDATE action, got %+v", actions)
	}

	result := Apply(ctx, store, actions, false)
	if result.Applied != 1 {
		t.Fatalf("expected 1 applied action, got %d", result.Applied)
	}
	stored, _ := store.GetByKey(ctx, changed.Key())
	if stored.Version != "2.0" {
		t.Fatalf("expected version updated to 2.0, got %s", stored.Version)
	}
}

func TestDiffProducesDeleteForRemovedPlan(t *testing.T) {
	store := memory.NewPlanStore()
	ctx := context.Background()
	store.Create(ctx, basePlan("checkout"))

	actions, err := Diff(ctx, store, nil)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if len(actions) != 1 || actions[0].Kind != ActionDelete {
		t.Fatalf("expected DELETE action, got %+v", actions)
	}

	result := Apply(ctx, store, actions, false)
	if result.Applied != 1 {
		t.Fatalf("expected 1 applied action, got %d", result.Applied)
	}
	if _, err := store.GetByKey(ctx, basePlan("checkout").Key()); err == nil {
		t.Fatal("expected plan removed after delete action applied")
	}
}

func TestApplyDryRunMakesNoChanges(t *testing.T) {
	store := memory.NewPlanStore()
	ctx := context.Background()

	actions, _ := Diff(ctx, store, []plan.Plan{basePlan("checkout")})
	result := Apply(ctx, store, actions, true)
	if result.Applied != 0 {
		t.Fatalf("expected 0 applied actions in dry run, got %d", result.Applied)
	}
	if _, err := store.GetByKey(ctx, basePlan("checkout").Key()); err == nil {
		t.Fatal("expected no plan created during dry run")
	}
}
