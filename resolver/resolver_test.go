package resolver_test

import (
	"context"
	"reflect"
	"testing"

	"imagecleanse/database"
	"imagecleanse/logging"
	"imagecleanse/resolver"
	"imagecleanse/testsupport"
	"imagecleanse/types"
)

const (
	hashA = "a0a0a0a0a0a0a0a0"
	hashB = "b1b1b1b1b1b1b1b1"
)

func record(id int64, path, hash string, blur float64, w, h int) types.ImageRecord {
	return types.ImageRecord{
		ID: id, Path: path, ContentHash: hash, PerceptualHash: hash,
		BlurScore: blur, Width: w, Height: h, Analyzed: true,
	}
}

func TestGroupDeterministicPrimary(t *testing.T) {
	orders := [][]types.ImageRecord{
		{record(1, "x.jpg", hashA, 40, 100, 100), record(2, "b.jpg", hashA, 10, 100, 100), record(3, "a.jpg", hashA, 10, 100, 100)},
		{record(3, "a.jpg", hashA, 10, 100, 100), record(1, "x.jpg", hashA, 40, 100, 100), record(2, "b.jpg", hashA, 10, 100, 100)},
		{record(2, "b.jpg", hashA, 10, 100, 100), record(3, "a.jpg", hashA, 10, 100, 100), record(1, "x.jpg", hashA, 40, 100, 100)},
	}
	for i, input := range orders {
		groups := resolver.Group(input)
		if len(groups) != 1 {
			t.Fatalf("order %d: expected one group, got %d", i, len(groups))
		}
		primary, ok := groups[0].Primary()
		if !ok || primary.Path != "a.jpg" {
			t.Fatalf("order %d: primary = %+v, want a.jpg", i, primary)
		}
		primaries := 0
		for _, m := range groups[0].Members {
			if m.IsPrimary {
				primaries++
			}
			if m.HashDistance != 0 {
				t.Fatalf("equal hashes must have distance 0, got %d", m.HashDistance)
			}
		}
		if primaries != 1 {
			t.Fatalf("order %d: %d primaries", i, primaries)
		}
	}
}

func TestGroupTieBreaksOnArea(t *testing.T) {
	groups := resolver.Group([]types.ImageRecord{
		record(1, "a-small.jpg", hashA, 10, 100, 100),
		record(2, "z-large.jpg", hashA, 10, 200, 100),
	})
	primary, _ := groups[0].Primary()
	if primary.Path != "z-large.jpg" {
		t.Fatalf("larger image should win the tie, got %s", primary.Path)
	}
}

func TestGroupSkipsSingletonsAndUnanalyzed(t *testing.T) {
	unanalyzed := record(4, "d.jpg", hashB, 1, 10, 10)
	unanalyzed.Analyzed = false
	groups := resolver.Group([]types.ImageRecord{
		record(1, "a.jpg", hashA, 10, 10, 10),
		record(2, "b.jpg", hashB, 10, 10, 10),
		unanalyzed,
	})
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %+v", groups)
	}
}

func setup(t *testing.T, images ...types.ImageFeature) (*database.Store, *resolver.Resolver) {
	t.Helper()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	if len(images) > 0 {
		testsupport.MustIngest(t, store, testsupport.NewReport("/media", images...))
	}
	return store, resolver.New(store, logging.NewNop())
}

func groupSummary(t *testing.T, store *database.Store) map[string][]string {
	t.Helper()
	groups, err := store.Groups(context.Background(), nil)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	out := make(map[string][]string)
	for _, g := range groups {
		if len(g.Members) < 2 {
			t.Fatalf("group %s is a singleton", g.ID)
		}
		primaries := 0
		for _, m := range g.Members {
			out[g.ID] = append(out[g.ID], m.Path)
			if m.IsPrimary {
				primaries++
			}
		}
		if primaries != 1 {
			t.Fatalf("group %s has %d primaries", g.ID, primaries)
		}
	}
	return out
}

func TestRebuildScenario(t *testing.T) {
	store, r := setup(t,
		testsupport.Image("a.jpg", hashA, 20),
		testsupport.Image("b.jpg", hashA, 5),
		testsupport.Image("c.jpg", hashB, 30),
	)

	groups, err := r.Rebuild(context.Background(), nil)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("expected one group, got %d", len(groups))
	}
	primary, _ := groups[0].Primary()
	if primary.Path != "b.jpg" {
		t.Fatalf("primary = %s, want b.jpg", primary.Path)
	}

	// Primary is listed first by the store.
	want := map[string][]string{hashA: {"b.jpg", "a.jpg"}}
	if got := groupSummary(t, store); !reflect.DeepEqual(got, want) {
		t.Fatalf("groups = %v, want %v", got, want)
	}

	images, err := store.Images(context.Background(), types.ImageQuery{Paths: []string{"c.jpg"}})
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if images[0].GroupID != "" {
		t.Fatalf("c.jpg should be ungrouped, got %q", images[0].GroupID)
	}
}

func TestRebuildIsIdempotent(t *testing.T) {
	store, r := setup(t,
		testsupport.Image("a.jpg", hashA, 20),
		testsupport.Image("b.jpg", hashA, 5),
		testsupport.Image("c.jpg", hashA, 30),
	)
	ctx := context.Background()
	if _, err := r.Rebuild(ctx, nil); err != nil {
		t.Fatalf("first Rebuild: %v", err)
	}
	first := groupSummary(t, store)
	if _, err := r.Rebuild(ctx, nil); err != nil {
		t.Fatalf("second Rebuild: %v", err)
	}
	if _, err := r.Rebuild(ctx, []string{"a.jpg"}); err != nil {
		t.Fatalf("scoped Rebuild: %v", err)
	}
	if second := groupSummary(t, store); !reflect.DeepEqual(first, second) {
		t.Fatalf("rebuild changed groups: %v -> %v", first, second)
	}
}

func TestScopedRebuildFindsDuplicatesOutsideScope(t *testing.T) {
	store, r := setup(t,
		testsupport.Image("old/a.jpg", hashA, 20),
		testsupport.Image("new/b.jpg", hashA, 50),
		testsupport.Image("new/c.jpg", hashB, 30),
	)
	if _, err := r.Rebuild(context.Background(), []string{"new/b.jpg", "new/c.jpg"}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	want := map[string][]string{hashA: {"old/a.jpg", "new/b.jpg"}}
	if got := groupSummary(t, store); !reflect.DeepEqual(got, want) {
		t.Fatalf("groups = %v, want %v", got, want)
	}
}

func TestScopedRebuildRemovesStaleMembership(t *testing.T) {
	store, r := setup(t,
		testsupport.Image("a.jpg", hashA, 20),
		testsupport.Image("b.jpg", hashA, 5),
	)
	ctx := context.Background()
	if _, err := r.Rebuild(ctx, nil); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	// b.jpg was edited and no longer matches a.jpg.
	testsupport.MustIngest(t, store, testsupport.NewReport("/media", testsupport.Image("b.jpg", hashB, 5)))
	groups, err := r.Rebuild(ctx, []string{"b.jpg"})
	if err != nil {
		t.Fatalf("scoped Rebuild: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %+v", groups)
	}
	if got := groupSummary(t, store); len(got) != 0 {
		t.Fatalf("stale group survived: %v", got)
	}
}

func TestScopedRebuildEmptyScopeIsNoop(t *testing.T) {
	_, r := setup(t, testsupport.Image("a.jpg", hashA, 20))
	groups, err := r.Rebuild(context.Background(), []string{})
	if err != nil || groups != nil {
		t.Fatalf("expected no-op, got %v, %v", groups, err)
	}
}
