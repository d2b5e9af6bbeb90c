package pathutil

import "testing"

func TestHasDotSegments(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/normal/path", false},
		{"/path/./here", true},
		{"/path/../up", true},
		{"..", true},
		{"/...", false},
		{"/.hidden", false},
		{"/path/to/.", true},
	}
	for _, tt := range tests {
		if got := HasDotSegments(tt.path); got != tt.want {
			t.Errorf("HasDotSegments(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestCleanKeyPrefix(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"/", "", false},
		{"apps/sitecontent/bundles", "apps/sitecontent/bundles", false},
		{"/apps/sitecontent/bundles/", "apps/sitecontent/bundles", false},
		{"apps/../secrets", "", true},
		{"apps/./bundles", "", true},
		{"apps//bundles", "", true},
	}
	for _, tt := range tests {
		got, err := CleanKeyPrefix(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("CleanKeyPrefix(%q) = %q, %v; want %q, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
