package drive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dl-alexandre/docsync/internal/types"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return New(server.URL, Options{})
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestListChildren_PaginatesAndMapsCapabilities(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/drive/v3/files" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !strings.Contains(r.URL.Query().Get("q"), "'parent-1' in parents") {
			t.Errorf("unexpected query %q", r.URL.Query().Get("q"))
		}
		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(t, w, map[string]interface{}{
				"nextPageToken": "p2",
				"files": []map[string]interface{}{{
					"id": "f1", "name": "a.txt", "mimeType": "text/plain", "size": "5", "version": "7",
					"md5Checksum": "abc", "modifiedTime": "2026-01-02T03:04:05Z", "parents": []string{"parent-1"},
					"capabilities": map[string]bool{"canDownload": true, "canEdit": true, "canTrash": true},
				}},
			})
			return
		}
		writeJSON(t, w, map[string]interface{}{
			"files": []map[string]interface{}{
				{
					"id": "d1", "name": "sub", "mimeType": mimeTypeFolder,
					"capabilities": map[string]bool{"canListChildren": true, "canAddChildren": true, "canDownload": true},
				},
				{
					"id": "g1", "name": "notes", "mimeType": "application/vnd.google-apps.document",
					"capabilities": map[string]bool{"canDownload": true, "canEdit": true},
				},
			},
		})
	})

	nodes, err := svc.ListChildren(context.Background(), "tok", "parent-1")
	if err != nil {
		t.Fatalf("ListChildren() error = %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes across pages, got %d", len(nodes))
	}

	file := nodes[0]
	if file.Kind != types.KindFile || file.Size != 5 || file.Version != "7" || file.Checksum != "abc" || file.ParentID != "parent-1" {
		t.Errorf("unexpected file node: %+v", file)
	}
	if !file.Can(types.CapDownloadDocument) || !file.Can(types.CapEditDocumentContent) || !file.Can(types.CapDeleteDocument) {
		t.Errorf("file capabilities = %v", file.Permissions)
	}
	if file.UpdatedAt.IsZero() {
		t.Error("expected modifiedTime to be parsed")
	}

	folder := nodes[1]
	if !folder.IsFolder() || !folder.Can(types.CapListFolderContent) || !folder.Can(types.CapCreateDocument) {
		t.Errorf("unexpected folder node: %+v", folder)
	}

	native := nodes[2]
	if native.Can(types.CapDownloadDocument) {
		t.Error("native documents must not report download capability")
	}
}

func TestDownloadAndDelete(t *testing.T) {
	var trashed bool
	svc := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/drive/v3/files/f1" && r.URL.Query().Get("alt") == "media":
			_, _ = io.WriteString(w, "hello")
		case r.Method == http.MethodPatch && r.URL.Path == "/drive/v3/files/f1":
			var body map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&body)
			trashed, _ = body["trashed"].(bool)
			writeJSON(t, w, map[string]string{"id": "f1"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.String())
			w.WriteHeader(http.StatusNotFound)
		}
	})

	body, err := svc.Download(context.Background(), "tok", "f1")
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if string(data) != "hello" {
		t.Errorf("Download() content = %q", data)
	}

	if err := svc.Delete(context.Background(), "tok", "f1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !trashed {
		t.Error("expected Delete to move the file to trash")
	}
}

func TestGetDetail_NotFoundSurfacesAPIError(t *testing.T) {
	svc := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"code":404,"message":"File not found"}}`)
	})

	_, err := svc.GetDetail(context.Background(), "tok", "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("expected googleapi 404 error, got %v", err)
	}
}

func TestEscapeQuery(t *testing.T) {
	if got := escapeQuery(`it's a\b`); got != `it\'s a\\b` {
		t.Errorf("escapeQuery() = %q", got)
	}
}
