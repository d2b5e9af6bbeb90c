package version_test

import (
	"strings"
	"testing"

	v "github.com/keithlinneman/sitecontent/internal/version"
)

func TestVCSDirty_LdflagsWin(t *testing.T) {
	t.Cleanup(func() { v.VCSDirty = nil })

	dirty := true
	v.VCSDirty = &dirty
	if info := v.Get(); info.VCSDirty == nil || !*info.VCSDirty {
		t.Fatalf("VCSDirty = %v, want true", info.VCSDirty)
	}

	clean := false
	v.VCSDirty = &clean
	if info := v.Get(); info.VCSDirty == nil || *info.VCSDirty {
		t.Fatalf("VCSDirty = %v, want false", info.VCSDirty)
	}
}

func TestString(t *testing.T) {
	info := v.Get()
	s := info.String()
	if !strings.HasPrefix(s, v.AppName+" ") {
		t.Fatalf("String() = %q", s)
	}
	if info.GoVersion == "" {
		t.Fatal("GoVersion should come from build info")
	}
}
