package store

import (
	"encoding/json"
	"testing"
)

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{in: "dashboard", want: Dashboard()},
		{in: "", want: Dashboard()},
		{in: "folder:12", want: FolderScope(12)},
		{in: "folder:0", wantErr: true},
		{in: "folder:x", wantErr: true},
		{in: "documents", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScope(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScope(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseScope(%q) = %v, want %v", tt.in, got, tt.want)
			}
			if !tt.wantErr && tt.in != "" && got.String() != tt.in {
				t.Errorf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
}

func TestScope_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Route Scope `json:"route"`
	}{FolderScope(4)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"route":"folder:4"}` {
		t.Errorf("got %s", data)
	}

	var out struct {
		Route Scope `json:"route"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Route != FolderScope(4) {
		t.Errorf("route = %v, want folder:4", out.Route)
	}
}

func TestScopeAfter(t *testing.T) {
	tests := []struct {
		name  string
		route Scope
		m     Mutation
		want  Scope
	}{
		{name: "folder created on dashboard", route: Dashboard(), m: Mutation{Kind: FolderCreated, FolderID: 3}, want: Dashboard()},
		{name: "folder renamed on dashboard", route: Dashboard(), m: Mutation{Kind: FolderUpdated, FolderID: 3}, want: Dashboard()},
		{name: "folder deleted on dashboard", route: Dashboard(), m: Mutation{Kind: FolderDeleted, FolderID: 3}, want: Dashboard()},
		{name: "viewed folder deleted", route: FolderScope(3), m: Mutation{Kind: FolderDeleted, FolderID: 3}, want: Dashboard()},
		{name: "other folder deleted", route: FolderScope(3), m: Mutation{Kind: FolderDeleted, FolderID: 4}, want: FolderScope(3)},
		{name: "document uploaded", route: FolderScope(3), m: Mutation{Kind: DocumentUploaded, FolderID: 3}, want: FolderScope(3)},
		{name: "document deleted", route: FolderScope(3), m: Mutation{Kind: DocumentDeleted, FolderID: 3}, want: FolderScope(3)},
		{name: "tag created", route: FolderScope(3), m: Mutation{Kind: TagCreated}, want: FolderScope(3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScopeAfter(tt.route, tt.m); got != tt.want {
				t.Errorf("ScopeAfter() = %v, want %v", got, tt.want)
			}
		})
	}
}
