package reposcan

import (
	"context"
	"errors"
	"testing"

	"github.com/quantumlayerhq/sbom-enrich/pkg/logger"
)

type erroringLister struct{}

func (erroringLister) ListRepos(ctx context.Context, org string) ([]Repo, error) {
	return nil, errors.New("github rate limited")
}

func TestRunPropagatesListReposFailureAsUnrecoverable(t *testing.T) {
	task := New(erroringLister{}, nil, nil, nil, "acme", "", t.TempDir(), logger.New("error", "text"))

	_, err := task.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected an unrecoverable error when listing repos fails")
	}
}

func TestScanStateCollection(t *testing.T) {
	var s ScanState
	if s.CollectionName() != "RepoScanState" {
		t.Fatalf("unexpected collection name: %s", s.CollectionName())
	}
	s.SetDocID("abc")
	if s.DocID() != "abc" {
		t.Fatalf("DocID roundtrip failed: %s", s.DocID())
	}
}
