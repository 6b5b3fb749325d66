package aupat_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/bizzlechizzle/aupat-sub000/internal/aupat"
	"github.com/bizzlechizzle/aupat-sub000/internal/model"
	"github.com/bizzlechizzle/aupat-sub000/internal/testutil"
)

func TestService_Locations(t *testing.T) {
	env := testutil.NewEnv(t, testutil.EnvOptions{ShortIDLength: 8})

	loc, err := env.Service.CreateLocation("Riverside Mill", "ny", "factory", "textile")
	if err != nil {
		t.Fatalf("CreateLocation() error = %v", err)
	}
	if len(loc.ID) != 8 || loc.SubType != "textile" {
		t.Errorf("location = %+v", loc)
	}

	got, err := env.Service.GetLocation(loc.ID)
	if err != nil || got.Name != "Riverside Mill" {
		t.Errorf("GetLocation() = %+v, %v", got, err)
	}
	if _, err := env.Service.GetLocation("missing"); err == nil {
		t.Error("GetLocation() of an unknown id should fail")
	}

	for _, bad := range []struct{ name, region, typ string }{
		{"", "ny", "factory"},
		{"a/b", "ny", "factory"},
		{"Mill", "..", "factory"},
	} {
		if _, err := env.Service.CreateLocation(bad.name, bad.region, bad.typ, ""); err == nil {
			t.Errorf("CreateLocation(%q, %q, %q) expected error", bad.name, bad.region, bad.typ)
		}
	}

	env.Location(t, "Depot", "pa", "rail")
	locs, err := env.Service.ListLocations()
	if err != nil || len(locs) != 2 {
		t.Errorf("ListLocations() = %d, %v", len(locs), err)
	}

	if want := filepath.Join(env.Root, "ny-factory", "Riverside Mill_"+loc.ID); env.Service.LocationDir(loc) != want {
		t.Errorf("LocationDir() = %q, want %q", env.Service.LocationDir(loc), want)
	}
}

func TestService_SubLocations(t *testing.T) {
	env := testutil.NewEnv(t, testutil.EnvOptions{})
	loc := env.Location(t, "Depot", "ny", "factory")
	other := env.Location(t, "Yard", "ny", "factory")

	sub, err := env.Service.CreateSubLocation(loc.ID, "Boiler Room")
	if err != nil {
		t.Fatalf("CreateSubLocation() error = %v", err)
	}
	if sub.LocationID != loc.ID {
		t.Errorf("LocationID = %s, want %s", sub.LocationID, loc.ID)
	}

	if _, err := env.Service.CreateSubLocation("missing", "Room"); err == nil {
		t.Error("CreateSubLocation() under an unknown location should fail")
	}
	if _, err := env.Service.CreateSubLocation(loc.ID, "a/b"); err == nil {
		t.Error("CreateSubLocation() with a separator should fail")
	}

	subs, err := env.Service.ListSubLocations(loc.ID)
	if err != nil || len(subs) != 1 {
		t.Errorf("ListSubLocations() = %d, %v", len(subs), err)
	}

	path := env.Stage(t, "x.jpg", []byte("x"))
	_, err = env.Service.Import(context.Background(), aupat.ImportRequest{Items: []aupat.IntakeItem{
		{SourcePath: path, LocationID: other.ID, SubLocationID: sub.ID},
	}})
	if err == nil {
		t.Error("Import() with a sub-location of another location should fail")
	}
}

func TestService_EnsureStructure(t *testing.T) {
	env := testutil.NewEnv(t, testutil.EnvOptions{})
	loc := env.Location(t, "Depot", "ny", "factory")

	created, err := env.Service.EnsureStructure(loc.ID)
	if err != nil {
		t.Fatalf("EnsureStructure() error = %v", err)
	}
	if len(created) == 0 {
		t.Fatal("EnsureStructure() created nothing")
	}
	if created[0] != filepath.Join(env.Root, "ny-factory") {
		t.Errorf("created[0] = %q", created[0])
	}

	again, err := env.Service.EnsureStructure(loc.ID)
	if err != nil || len(again) != 0 {
		t.Errorf("second EnsureStructure() = %v, %v; want nothing", again, err)
	}
	if _, err := env.Service.EnsureStructure("missing"); err == nil {
		t.Error("EnsureStructure() of an unknown location should fail")
	}
}

func TestService_CollectItems(t *testing.T) {
	env := testutil.NewEnv(t, testutil.EnvOptions{})
	loc := env.Location(t, "Depot", "ny", "factory")

	env.Stage(t, "card/IMG_10.jpg", []byte("10"))
	env.Stage(t, "card/IMG_9.jpg", []byte("9"))
	env.Stage(t, "card/.hidden.jpg", []byte("h"))
	single := env.Stage(t, "loose.mp4", []byte("v"))

	items, err := env.Service.CollectItems([]string{filepath.Join(env.StagingDir, "card"), single, single}, loc.ID, "")
	if err != nil {
		t.Fatalf("CollectItems() error = %v", err)
	}
	var got []string
	for _, it := range items {
		rel, _ := filepath.Rel(env.StagingDir, it.SourcePath)
		got = append(got, rel)
		if it.LocationID != loc.ID {
			t.Errorf("item %s LocationID = %q", rel, it.LocationID)
		}
	}
	want := []string{"card/IMG_9.jpg", "card/IMG_10.jpg", "loose.mp4"}
	if len(got) != len(want) {
		t.Fatalf("items = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("items[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	outside := testutil.WriteFile(t, filepath.Join(t.TempDir(), "x.jpg"), []byte("x"))
	if _, err := env.Service.CollectItems([]string{outside}, loc.ID, ""); err == nil {
		t.Error("CollectItems() outside staging should fail")
	}
}

func TestService_MoveAsset(t *testing.T) {
	env := testutil.NewEnv(t, testutil.EnvOptions{})
	from := env.Location(t, "Depot", "ny", "factory")
	to := env.Location(t, "Yard", "ny", "factory")
	sub, _ := env.Service.CreateSubLocation(to.ID, "North")

	report, err := env.Service.Import(context.Background(), aupat.ImportRequest{Items: testutil.Items(from, env.Stage(t, "x.jpg", []byte("x")))})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	id := report.Outcomes[0].AssetID
	before, _ := env.Service.GetAsset(id)

	if err := env.Service.MoveAsset(id, to.ID, sub.ID); err != nil {
		t.Fatalf("MoveAsset() error = %v", err)
	}
	moved, _ := env.Service.GetAsset(id)
	if moved.LocationID != to.ID || moved.SubLocationID.String != sub.ID {
		t.Errorf("moved asset = %+v", moved)
	}
	if moved.ArchivePath != before.ArchivePath {
		t.Error("MoveAsset() changed the archive path")
	}
	if assets, _ := env.Service.ListAssets(from.ID); len(assets) != 0 {
		t.Errorf("source location still lists %d assets", len(assets))
	}

	tests := []struct {
		name            string
		asset, loc, sub string
	}{
		{"unknown asset", "missing", to.ID, ""},
		{"unknown location", id, "missing", ""},
		{"foreign sub-location", id, from.ID, sub.ID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := env.Service.MoveAsset(tt.asset, tt.loc, tt.sub); err == nil {
				t.Error("MoveAsset() expected error")
			}
		})
	}
}

func TestService_MoveAsset_RequiresFinalized(t *testing.T) {
	env := testutil.NewEnv(t, testutil.EnvOptions{})
	loc := env.Location(t, "Depot", "ny", "factory")
	paths := stageShoot(t, env)
	env.FS.AfterRelocate = func(n int, dst string) {
		if n == 1 {
			testutil.CorruptFile(t, dst)
		}
	}
	env.Service.Import(context.Background(), aupat.ImportRequest{JobID: "job1", Items: testutil.Items(loc, paths...)})

	flagged, err := env.DB.ListAssetsByJob("job1", model.StateVerificationFailed)
	if err != nil || len(flagged) != 1 {
		t.Fatalf("flagged assets = %d, %v", len(flagged), err)
	}
	if err := env.Service.MoveAsset(flagged[0].ID, loc.ID, ""); err == nil {
		t.Error("MoveAsset() of a flagged asset should fail")
	}
}
