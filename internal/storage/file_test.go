package storage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	logx "voicely/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "store")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestFileRegistryRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	want := RegistrySnapshot{
		"t1": {
			"r1": {2: {"alice", "bob"}, 3: {"carol"}},
			"r2": {5: {"alice"}},
		},
	}
	if err := st.SaveRegistry(ctx, want); err != nil {
		t.Fatalf("SaveRegistry: %v", err)
	}
	got, err := st.LoadRegistry(ctx)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip = %v, want %v", got, want)
	}
}

func TestFileSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	want := SettingsSnapshot{
		"t1": {DefaultThreshold: 5, PublicConfirm: true},
	}
	if err := st.SaveSettings(ctx, want); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	got, err := st.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip = %v, want %v", got, want)
	}
}

func TestFileLoadMissingIsEmpty(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	reg, err := st.LoadRegistry(ctx)
	if err != nil || len(reg) != 0 {
		t.Fatalf("LoadRegistry on fresh store = (%v, %v)", reg, err)
	}
	set, err := st.LoadSettings(ctx)
	if err != nil || len(set) != 0 {
		t.Fatalf("LoadSettings on fresh store = (%v, %v)", set, err)
	}
}

func TestFileSaveOverwritesWhole(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	first := RegistrySnapshot{"t1": {"r1": {2: {"alice"}}}}
	if err := st.SaveRegistry(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := RegistrySnapshot{"t2": {"r9": {4: {"zoe"}}}}
	if err := st.SaveRegistry(ctx, second); err != nil {
		t.Fatal(err)
	}
	got, err := st.LoadRegistry(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, second) {
		t.Fatalf("got %v, want the second snapshot only", got)
	}
}

func TestFileSaveLeavesNoTempBehind(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "store")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	if err := st.SaveRegistry(context.Background(), RegistrySnapshot{"t": {"r": {1: {"u"}}}}); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "bolt"}, logx.Nop()); err == nil {
		t.Fatal("unknown driver accepted")
	}
}
