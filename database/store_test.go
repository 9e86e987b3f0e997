package database_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"imagecleanse/database"
	"imagecleanse/logging"
	"imagecleanse/testsupport"
	"imagecleanse/types"
)

const folder = "/media/photos"

func TestIngestIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	report := testsupport.NewReport(folder,
		testsupport.Image("a.jpg", "00000000000000aa", 250),
		testsupport.Image("sub/b.jpg", "00000000000000bb", 30),
	)
	first := testsupport.MustIngest(t, store, report)
	if first.ImagesCreated != 2 || first.ImagesUpdated != 0 || first.FoldersTouched != 1 {
		t.Fatalf("unexpected first summary %+v", first)
	}

	second := testsupport.MustIngest(t, store, testsupport.NewReport(folder,
		testsupport.Image("a.jpg", "00000000000000aa", 250),
		testsupport.Image("sub/b.jpg", "00000000000000bb", 30),
	))
	if second.Changed() || second.ImagesUnchanged != 2 {
		t.Fatalf("re-ingesting identical report should change nothing, got %+v", second)
	}

	images, err := store.Images(context.Background(), types.ImageQuery{})
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	folders, err := store.Folders(context.Background())
	if err != nil {
		t.Fatalf("Folders: %v", err)
	}
	if len(folders) != 1 || folders[0].ImageCount != 2 || folders[0].Checksum == "" {
		t.Fatalf("unexpected folders %+v", folders)
	}
}

func TestIngestFolderCountTracksLatestReport(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	testsupport.MustIngest(t, store, testsupport.NewReport(folder,
		testsupport.Image("a.jpg", "00000000000000aa", 250),
		testsupport.Image("b.jpg", "00000000000000bb", 250),
		testsupport.Image("c.jpg", "00000000000000cc", 250),
	))
	full, err := store.Folders(context.Background())
	if err != nil {
		t.Fatalf("Folders: %v", err)
	}

	testsupport.MustIngest(t, store, testsupport.NewReport(folder,
		testsupport.Image("b.jpg", "00000000000000bb", 250),
	))
	folders, err := store.Folders(context.Background())
	if err != nil {
		t.Fatalf("Folders: %v", err)
	}
	if len(folders) != 1 || folders[0].ImageCount != 1 {
		t.Fatalf("image_count should equal the latest report size, got %+v", folders)
	}
	if folders[0].Checksum == full[0].Checksum {
		t.Fatal("folder checksum should follow the latest report")
	}
	images, err := store.Images(context.Background(), types.ImageQuery{})
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("earlier rows stay in the catalog, got %d", len(images))
	}
}

func TestIngestUpdatesChangedImages(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	testsupport.MustIngest(t, store, testsupport.NewReport(folder, testsupport.Image("a.jpg", "00000000000000aa", 250)))

	summary := testsupport.MustIngest(t, store, testsupport.NewReport(folder, testsupport.Image("a.jpg", "00000000000000aa", 20)))
	if summary.ImagesUpdated != 1 || summary.ImagesCreated != 0 {
		t.Fatalf("expected one update, got %+v", summary)
	}

	images, err := store.Images(context.Background(), types.ImageQuery{Paths: []string{"a.jpg"}})
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 1 || images[0].BlurScore != 20 || !images[0].IsBlurry {
		t.Fatalf("analysis not updated: %+v", images)
	}
}

func TestIngestBlurThresholdIsStrict(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t, testsupport.WithBlurThreshold(100)))
	testsupport.MustIngest(t, store, testsupport.NewReport(folder,
		testsupport.Image("at.jpg", "0000000000000001", 100),
		testsupport.Image("below.jpg", "0000000000000002", 99.9),
	))

	images, err := store.Images(context.Background(), types.ImageQuery{Paths: []string{"at.jpg", "below.jpg"}})
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if images[0].Path != "at.jpg" || images[0].IsBlurry {
		t.Fatalf("score equal to threshold must not be blurry: %+v", images[0])
	}
	if !images[1].IsBlurry {
		t.Fatalf("score below threshold must be blurry: %+v", images[1])
	}
}

func TestIngestStoresFaceState(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	withFace := testsupport.Image("face.jpg", "0000000000000010", 300)
	withFace.HasFace = types.FacePresent
	noFace := testsupport.Image("empty.jpg", "0000000000000011", 300)
	noFace.HasFace = types.FaceAbsent
	unknown := testsupport.Image("unknown.jpg", "0000000000000012", 300)
	testsupport.MustIngest(t, store, testsupport.NewReport(folder, withFace, noFace, unknown))

	list, err := store.ListImages(context.Background(), types.ImageFilter{NoFace: true})
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(list) != 1 || list[0].Path != "empty.jpg" || list[0].HasFace != types.FaceAbsent {
		t.Fatalf("no-face listing should hold only empty.jpg, got %+v", list)
	}
	all, err := store.Images(context.Background(), types.ImageQuery{Paths: []string{"unknown.jpg", "face.jpg"}})
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if all[0].HasFace != types.FacePresent || all[1].HasFace != types.FaceUnknown {
		t.Fatalf("face states not preserved: %+v", all)
	}
}

func TestIngestRejectsInvalidReport(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	bad := testsupport.NewReport(folder,
		testsupport.Image("ok.jpg", "00000000000000aa", 10),
		testsupport.Image("../escape.jpg", "00000000000000bb", 10),
	)
	if _, err := store.Ingest(context.Background(), bad); !errors.Is(err, types.ErrInvalidReport) {
		t.Fatalf("expected ErrInvalidReport, got %v", err)
	}
	images, err := store.Images(context.Background(), types.ImageQuery{})
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 0 {
		t.Fatalf("invalid report must not write anything, got %d images", len(images))
	}
}

func TestIngestKeepsSuccessfulImagesAlongsideFileErrors(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	var imgs []types.ImageFeature
	for i := 0; i < 9; i++ {
		imgs = append(imgs, testsupport.Image(string(rune('a'+i))+".jpg", "000000000000000"+string(rune('0'+i)), 200))
	}
	report := testsupport.NewReport(folder, imgs...)
	report.Errors = []types.FileError{{Path: "j.jpg", Err: "decode failed"}}
	report.FilesSeen = 10

	summary := testsupport.MustIngest(t, store, report)
	if summary.ImagesCreated != 9 {
		t.Fatalf("expected 9 images committed, got %+v", summary)
	}
}

func TestReplaceGroupsEnforcesInvariants(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustIngest(t, store, testsupport.NewReport(folder,
		testsupport.Image("a.jpg", "00000000000000aa", 40),
		testsupport.Image("b.jpg", "00000000000000aa", 10),
		testsupport.Image("c.jpg", "00000000000000aa", 10),
	))
	images, err := store.Images(ctx, types.ImageQuery{})
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	ids := map[string]int64{}
	for _, img := range images {
		ids[img.Path] = img.ID
	}

	group := types.GroupWrite{ReplaceAll: true, Members: []types.Membership{
		{GroupID: "g1", ImageID: ids["a.jpg"]},
		{GroupID: "g1", ImageID: ids["b.jpg"], IsPrimary: true},
		{GroupID: "g1", ImageID: ids["c.jpg"]},
	}}
	if err := store.ReplaceGroups(ctx, group); err != nil {
		t.Fatalf("ReplaceGroups: %v", err)
	}
	if err := store.ReplaceGroups(ctx, types.GroupWrite{Members: group.Members}); err != nil {
		t.Fatalf("re-posting the same memberships should be a no-op, got %v", err)
	}

	singleton := types.GroupWrite{ReplaceAll: true, Members: []types.Membership{
		{GroupID: "g2", ImageID: ids["a.jpg"], IsPrimary: true},
	}}
	if err := store.ReplaceGroups(ctx, singleton); !errors.Is(err, types.ErrInvalidGroups) {
		t.Fatalf("expected ErrInvalidGroups for singleton, got %v", err)
	}

	// Dropping the primary alone would leave g1 without one.
	if err := store.ReplaceGroups(ctx, types.GroupWrite{ReplaceImages: []int64{ids["b.jpg"]}}); !errors.Is(err, types.ErrInvalidGroups) {
		t.Fatalf("removing the primary should be rejected, got %v", err)
	}

	missing := types.GroupWrite{ReplaceGroups: []string{"g1"}, Members: []types.Membership{
		{GroupID: "g3", ImageID: ids["a.jpg"], IsPrimary: true},
		{GroupID: "g3", ImageID: 9999},
	}}
	if err := store.ReplaceGroups(ctx, missing); err == nil {
		t.Fatal("expected foreign key failure for unknown image")
	}

	groups, err := store.Groups(ctx, nil)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != "g1" || len(groups[0].Members) != 3 {
		t.Fatalf("failed writes must leave g1 intact, got %+v", groups)
	}
	if p, ok := groups[0].Primary(); !ok || p.Path != "b.jpg" || groups[0].Members[0].Path != "b.jpg" {
		t.Fatalf("primary should be listed first and be b.jpg, got %+v", groups[0].Members)
	}

	recs, err := store.Images(ctx, types.ImageQuery{Hashes: []string{"00000000000000aa"}})
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	for _, r := range recs {
		if r.GroupID != "g1" {
			t.Fatalf("expected group id on %s, got %q", r.Path, r.GroupID)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := types.CatalogStats{Folders: 1, Images: 3, AnalyzedImages: 3, BlurryImages: 3, UniqueHashes: 1, DuplicateGroups: 1, DuplicateImages: 3}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
}

func TestRemoveImagesCascades(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustIngest(t, store, testsupport.NewReport(folder,
		testsupport.Image("a.jpg", "00000000000000aa", 40),
		testsupport.Image("b.jpg", "00000000000000aa", 10),
		testsupport.Image("c.jpg", "00000000000000aa", 20),
	))
	images, _ := store.Images(ctx, types.ImageQuery{})
	write := types.GroupWrite{ReplaceAll: true}
	for i, img := range images {
		write.Members = append(write.Members, types.Membership{GroupID: "g", ImageID: img.ID, IsPrimary: i == 0})
	}
	if err := store.ReplaceGroups(ctx, write); err != nil {
		t.Fatalf("ReplaceGroups: %v", err)
	}

	removed, survivors, err := store.RemoveImages(ctx, []string{"a.jpg"})
	if err != nil {
		t.Fatalf("RemoveImages: %v", err)
	}
	slices.Sort(survivors)
	if removed != 1 || !slices.Equal(survivors, []string{"b.jpg", "c.jpg"}) {
		t.Fatalf("removed=%d survivors=%v", removed, survivors)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Images != 2 || stats.AnalyzedImages != 2 || stats.DuplicateGroups != 0 {
		t.Fatalf("analysis rows and group should be gone, stats %+v", stats)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := database.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	testsupport.MustIngest(t, store, testsupport.NewReport(folder, testsupport.Image("a.jpg", "00000000000000aa", 40)))
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	images, err := reopened.Images(context.Background(), types.ImageQuery{Paths: []string{"a.jpg"}})
	if err != nil {
		t.Fatalf("Images: %v", err)
	}
	if len(images) != 1 || images[0].Orientation != 1 {
		t.Fatalf("expected persisted image with default orientation, got %+v", images)
	}
}
