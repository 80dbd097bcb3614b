package exclude

import (
	"testing"

	"github.com/dl-alexandre/docsync/internal/utils"
)

func TestMatcher_IsExcluded(t *testing.T) {
	m := New([]string{"build/", "*.bak", "secret.txt"})

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{utils.TempFilePrefix + "1234", false, true},
		{"docs/" + utils.TempFilePrefix + "abcd", false, true},
		{".DS_Store", false, true},
		{"photos/._IMG_1.jpg", false, true},
		{"reports/~$budget.xlsx", false, true},
		{"build", true, true},
		{"build/out.pdf", false, true},
		{"build", false, false},
		{"old/report.bak", false, true},
		{"secret.txt", false, true},
		{"nested/secret.txt", false, true},
		{".git", true, true},
		{"report.pdf", false, false},
		{"docs/notes.txt", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := m.IsExcluded(tt.path, tt.isDir); got != tt.want {
				t.Errorf("IsExcluded(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestMatcher_NilAndBlank(t *testing.T) {
	var m *Matcher
	if m.IsExcluded("anything", false) {
		t.Error("nil matcher must not exclude")
	}
	if m.Patterns() != nil {
		t.Error("nil matcher has no patterns")
	}

	withBlank := New([]string{"  ", ""})
	if len(withBlank.Patterns()) != len(DefaultPatterns())+1 {
		t.Errorf("blank patterns should be dropped: %v", withBlank.Patterns())
	}
}

func TestMatcher_DropsMalformedGlobs(t *testing.T) {
	m := New([]string{"[unclosed", "/", "*.draft"})
	if got, want := len(m.Patterns()), len(DefaultPatterns())+2; got != want {
		t.Errorf("len(Patterns()) = %d, want %d: %v", got, want, m.Patterns())
	}
	if !m.IsExcluded("notes/plan.draft", false) {
		t.Error("valid glob after a malformed one should still apply")
	}
}
