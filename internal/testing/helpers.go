package testing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dl-alexandre/docsync/internal/store"
	"github.com/dl-alexandre/docsync/internal/types"
	"github.com/dl-alexandre/docsync/internal/utils"
)

// TestContext creates a standard test context
func TestContext() context.Context {
	return context.Background()
}

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		AccountKey:  "https://docs.example.comtest@example.com",
		FolderID:    "test-folder",
		NodeIDs:     []string{},
		RequestType: types.RequestTypeList,
		TraceID:     "test-trace-id",
	}
}

// TestAccount creates an account record pointing at serverURL
func TestAccount(id, serverURL, email string) types.Account {
	return types.Account{
		ID:          id,
		DisplayName: id,
		ServerURL:   serverURL,
		Email:       email,
		CreatedAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// OpenTestStore opens a throwaway database that is closed with the test
func OpenTestStore(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), utils.DatabaseFileName))
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// AssertNoError is a helper to fail the test if error is not nil
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

// AssertCode fails the test unless err carries the given error code
func AssertCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error but got nil", code)
	}
	if !utils.IsCode(err, code) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}
