package cli

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestResolveWorkListPrecedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(file, []byte("from-file/a.mov"), 0o644); err != nil {
		t.Fatal(err)
	}

	keys, err := resolveWorkList("inline/a.mov", file, "env/a.mov", strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"inline/a.mov"}) {
		t.Fatalf("inline flag must win, got %v", keys)
	}

	keys, err = resolveWorkList("", file, "env/a.mov", strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"from-file/a.mov"}) {
		t.Fatalf("file must beat env, got %v", keys)
	}

	keys, err = resolveWorkList("", "", "env/a.mov, env/b.mov", strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"env/a.mov", "env/b.mov"}) {
		t.Fatalf("env list parsed to %v", keys)
	}
}

func TestResolveWorkListFileNewlines(t *testing.T) {
	file := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(file, []byte("a.mov\nb.mov,\nc.mov\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	keys, err := resolveWorkList("", file, "", strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(keys, []string{"a.mov", "b.mov", "c.mov"}) {
		t.Fatalf("keys = %v", keys)
	}
}

func TestResolveWorkListMissingFileIsFatal(t *testing.T) {
	_, err := resolveWorkList("", filepath.Join(t.TempDir(), "absent.txt"), "", strings.NewReader(""))
	var readErr *WorkListReadError
	if !errors.As(err, &readErr) {
		t.Fatalf("err = %v, want WorkListReadError", err)
	}
}

func TestResolveWorkListEmptyAfterTrim(t *testing.T) {
	if _, err := resolveWorkList(" , ,, ", "", "", strings.NewReader("")); err == nil {
		t.Fatal("blank inline list must be an error")
	}
}

func TestFormatBytesIEC(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, c := range cases {
		if got := formatBytesIEC(c.in); got != c.want {
			t.Errorf("formatBytesIEC(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}
