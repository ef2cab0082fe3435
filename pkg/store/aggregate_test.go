package store

import "testing"

func TestMatchStage(t *testing.T) {
	docs := Value{
		{"purl": "pkg:npm/a@1.0.0", "kind": "primary"},
		{"purl": "pkg:npm/b@1.0.0", "kind": "dependency"},
	}

	out := matchStage(map[string]any{"kind": "primary"}, docs)
	if len(out) != 1 || out[0]["purl"] != "pkg:npm/a@1.0.0" {
		t.Fatalf("unexpected match result: %+v", out)
	}
}

func TestProjectStageRenamesFields(t *testing.T) {
	docs := Value{{"purl": "pkg:npm/a@1.0.0", "kind": "primary", "extra": "drop-me"}}

	out := projectStage(map[string]any{"p": "purl", "k": "kind"}, docs)
	if len(out) != 1 {
		t.Fatalf("expected 1 doc, got %d", len(out))
	}
	if out[0]["p"] != "pkg:npm/a@1.0.0" || out[0]["k"] != "primary" {
		t.Fatalf("unexpected projection: %+v", out[0])
	}
	if _, ok := out[0]["extra"]; ok {
		t.Fatal("projection should drop unmentioned fields")
	}
}

func TestUnwindStageExpandsArray(t *testing.T) {
	docs := Value{
		{"purl": "pkg:npm/a@1.0.0", "dependencies": []any{"pkg:npm/b@1.0.0", "pkg:npm/c@1.0.0"}},
	}

	out := unwindStage("dependencies", docs)
	if len(out) != 2 {
		t.Fatalf("expected 2 docs after unwind, got %d", len(out))
	}
	if out[0]["dependencies"] != "pkg:npm/b@1.0.0" || out[1]["dependencies"] != "pkg:npm/c@1.0.0" {
		t.Fatalf("unexpected unwind result: %+v", out)
	}
}

func TestUnwindStageLeavesEmptyArrayAlone(t *testing.T) {
	docs := Value{{"purl": "pkg:npm/a@1.0.0", "dependencies": []any{}}}
	out := unwindStage("dependencies", docs)
	if len(out) != 1 {
		t.Fatalf("expected passthrough for empty array, got %d docs", len(out))
	}
}

func TestGroupStageCountsByKey(t *testing.T) {
	docs := Value{
		{"providerKind": "snyk"},
		{"providerKind": "snyk"},
		{"providerKind": "github"},
	}

	out := groupStage(map[string]any{"_id": "providerKind"}, docs)
	counts := map[string]int{}
	for _, g := range out {
		counts[g["_id"].(string)] = g["count"].(int)
	}
	if counts["snyk"] != 2 || counts["github"] != 1 {
		t.Fatalf("unexpected group counts: %+v", counts)
	}
}
