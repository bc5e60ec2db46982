package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/griffin-open-source/griffin-sub001/infrastructure/logging"
	"github.com/griffin-open-source/griffin-sub001/internal/app/domain/plan"
	domainqueue "github.com/griffin-open-source/griffin-sub001/internal/app/domain/queue"
	"github.com/griffin-open-source/griffin-sub001/internal/app/queue"
)

type fakePlans struct {
	mu          sync.Mutex
	due         []plan.Plan
	startedIDs  []string
}

func (f *fakePlans) Due(_ context.Context, _ time.Time) ([]plan.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.due, nil
}

func (f *fakePlans) MarkStarted(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startedIDs = append(f.startedIDs, id)
	f.due = nil
	return nil
}

type fakeLocations struct {
	locations []string
}

func (f *fakeLocations) OnlineLocations(_ context.Context) ([]string, error) {
	return f.locations, nil
}

func testLogger() *logging.Logger {
	l := logging.New("scheduler-test", "error", "json")
	return l
}

func TestSchedulePlanExplicitLocationsFansOutOnePerLocation(t *testing.T) {
	q := queue.NewMemoryQueue()
	s := &Scheduler{logger: testLogger(), queue: q}

	p := plan.Plan{ID: "p1", Environment: "prod", Locations: []string{"us-east", "eu-west"}}
	if err := s.schedulePlan(context.Background(), p, time.Now().UTC()); err != nil {
		t.Fatalf("schedulePlan: %v", err)
	}

	for _, loc := range []string{"us-east", "eu-west"} {
		depth, err := q.Depth(context.Background(), loc, domainqueue.StatusPending)
		if err != nil || depth != 1 {
			t.Fatalf("expected 1 pending job for %s, got %d err=%v", loc, depth, err)
		}
	}
}

func TestSchedulePlanEmptyLocationsFansOutToOnlineAgents(t *testing.T) {
	q := queue.NewMemoryQueue()
	s := &Scheduler{logger: testLogger(), queue: q, locations: &fakeLocations{locations: []string{"ap-south"}}}

	p := plan.Plan{ID: "p1", Environment: "prod"}
	if err := s.schedulePlan(context.Background(), p, time.Now().UTC()); err != nil {
		t.Fatalf("schedulePlan: %v", err)
	}

	depth, _ := q.Depth(context.Background(), "ap-south", domainqueue.StatusPending)
	if depth != 1 {
		t.Fatalf("expected 1 job fanned out to ap-south, got %d", depth)
	}
}

func TestSchedulePlanEmptyLocationsAndNoAgentsEnqueuesNothing(t *testing.T) {
	q := queue.NewMemoryQueue()
	s := &Scheduler{logger: testLogger(), queue: q, locations: &fakeLocations{locations: nil}}

	p := plan.Plan{ID: "p1", Environment: "prod"}
	if err := s.schedulePlan(context.Background(), p, time.Now().UTC()); err != nil {
		t.Fatalf("schedulePlan: %v", err)
	}
}

func TestTickMarksPlanStartedAfterScheduling(t *testing.T) {
	q := queue.NewMemoryQueue()
	plans := &fakePlans{due: []plan.Plan{{ID: "p1", Environment: "prod", Locations: []string{"us-east"}}}}
	s := New(plans, &fakeLocations{}, q, time.Minute, Hooks{}, testLogger())

	s.tick(context.Background())

	plans.mu.Lock()
	defer plans.mu.Unlock()
	if len(plans.startedIDs) != 1 || plans.startedIDs[0] != "p1" {
		t.Fatalf("expected p1 marked started, got %v", plans.startedIDs)
	}
}

func TestStartStopIsIdempotentAndStoppable(t *testing.T) {
	q := queue.NewMemoryQueue()
	plans := &fakePlans{}
	s := New(plans, &fakeLocations{}, q, 10*time.Millisecond, Hooks{}, testLogger())

	ctx := context.Background()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
