package types

import "testing"

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in   string
		want SyncDirection
		ok   bool
	}{
		{"bidirectional", DirectionBidirectional, true},
		{"", DirectionBidirectional, true},
		{"Pull", DirectionDownloadOnly, true},
		{"upload-only", DirectionUploadOnly, true},
		{"sideways", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDirection(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseDirection(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in       string
		want     ConflictPolicy
		decisive bool
	}{
		{"remote-wins", PolicyRemoteWins, true},
		{"LocalWins", PolicyLocalWins, true},
		{"rename-both", PolicyCreateCopy, true},
		{"ask", PolicyAskUser, false},
	}
	for _, tt := range tests {
		got, ok := ParsePolicy(tt.in)
		if !ok || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %q, %v", tt.in, got, ok)
		}
		if got.Decisive() != tt.decisive {
			t.Errorf("%q.Decisive() = %v", got, got.Decisive())
		}
	}
	if _, ok := ParsePolicy("coinFlip"); ok {
		t.Error("ParsePolicy accepted an unknown policy")
	}
}

func TestDirectionAllows(t *testing.T) {
	if !DirectionBidirectional.AllowsUpload() || !DirectionBidirectional.AllowsDownload() {
		t.Error("bidirectional must allow both sides")
	}
	if DirectionUploadOnly.AllowsDownload() || !DirectionUploadOnly.AllowsUpload() {
		t.Error("uploadOnly allows only uploads")
	}
	if DirectionDownloadOnly.AllowsUpload() || !DirectionDownloadOnly.AllowsDownload() {
		t.Error("downloadOnly allows only downloads")
	}
}

func TestAccountKey(t *testing.T) {
	a := Account{
		ServerURL: NormalizeServerURL(" HTTPS://Docs.Example.com/ "),
		Email:     NormalizeEmail(" Me@Example.com"),
	}
	if got := a.Key(); got != "https://docs.example.comme@example.com" {
		t.Errorf("Key() = %q", got)
	}
}

func TestRemoteNodeCan(t *testing.T) {
	n := RemoteNode{Kind: KindFolder, Permissions: []string{CapListFolderContent}}
	if !n.IsFolder() || !n.Can(CapListFolderContent) || n.Can(CapDeleteDocument) {
		t.Errorf("unexpected capabilities for %+v", n)
	}
}
