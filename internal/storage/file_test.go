package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	logx "pawtrack/pkg/logx"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st, err := openFile(Config{Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	defer st.Close()

	ctx := context.Background()
	in := map[string]any{"buddy": []any{map[string]any{"meal": "dinner"}}}
	if err := st.SaveNamespace(ctx, "feedings", in); err != nil {
		t.Fatalf("SaveNamespace: %v", err)
	}

	out, err := st.LoadNamespace(ctx, "feedings")
	if err != nil {
		t.Fatalf("LoadNamespace: %v", err)
	}
	list, ok := out["buddy"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("unexpected round trip: %v", out)
	}
	if list[0].(map[string]any)["meal"] != "dinner" {
		t.Fatalf("unexpected record: %v", list[0])
	}
}

func TestFileStoreMissingNamespaceIsEmpty(t *testing.T) {
	st, err := openFile(Config{Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	defer st.Close()

	out, err := st.LoadNamespace(context.Background(), "walks")
	if err != nil {
		t.Fatalf("LoadNamespace: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty namespace, got %v", out)
	}
}

func TestFileStoreCorruptFileErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "health.json"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := openFile(Config{Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	defer st.Close()

	if _, err := st.LoadNamespace(context.Background(), "health"); err == nil {
		t.Fatal("expected error for corrupt namespace file")
	}
}

func TestFileStoreNoTempLeftovers(t *testing.T) {
	dir := t.TempDir()
	st, err := openFile(Config{Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	defer st.Close()

	if err := st.SaveNamespace(context.Background(), "walks", map[string]any{}); err != nil {
		t.Fatalf("SaveNamespace: %v", err)
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
