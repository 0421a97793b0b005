package worklist

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseTrimsAndDropsEmpties(t *testing.T) {
	got := Parse(" a.mov , ,b.mov,,  a.mov ")
	want := []string{"a.mov", "b.mov", "a.mov"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Parse = %v, want %v", got, want)
	}
	if len(Parse("")) != 0 {
		t.Fatal("empty input should yield no keys")
	}
}

func TestPartitionScenario(t *testing.T) {
	items := Parse("a.mov,b.mov,a.mov")

	p0, err := Partition(items, 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a.mov", "a.mov"}; !reflect.DeepEqual(p0, want) {
		t.Errorf("instance 0 = %v, want %v", p0, want)
	}

	p1, err := Partition(items, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"b.mov"}; !reflect.DeepEqual(p1, want) {
		t.Errorf("instance 1 = %v, want %v", p1, want)
	}
}

func TestPartitionDisjointAndCovering(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e", "f", "g"}
	for total := 1; total <= len(items)+1; total++ {
		var rebuilt [][]string
		seen := 0
		for index := 0; index < total; index++ {
			part, err := Partition(items, index, total)
			if err != nil {
				t.Fatalf("total=%d index=%d: %v", total, index, err)
			}
			rebuilt = append(rebuilt, part)
			seen += len(part)
		}
		if seen != len(items) {
			t.Fatalf("total=%d: partitions cover %d items, want %d", total, seen, len(items))
		}
		// Interleave back in original order and compare.
		var merged []string
		for i := range items {
			merged = append(merged, rebuilt[i%total][i/total])
		}
		if !reflect.DeepEqual(merged, items) {
			t.Fatalf("total=%d: merged %v != %v", total, merged, items)
		}
	}
}

func TestPartitionInvalidParameters(t *testing.T) {
	cases := []struct{ index, total int }{
		{0, 0},
		{0, -1},
		{-1, 2},
		{2, 2},
		{5, 3},
	}
	for _, tc := range cases {
		_, err := Partition([]string{"a"}, tc.index, tc.total)
		var pe *PartitionError
		if !errors.As(err, &pe) {
			t.Errorf("index=%d total=%d: expected PartitionError, got %v", tc.index, tc.total, err)
		}
	}
}

func TestPartitionSingleInstanceIdentity(t *testing.T) {
	items := []string{"x", "y", "z"}
	part, err := Partition(items, 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(part, items) {
		t.Fatalf("Partition(_, 0, 1) = %v, want %v", part, items)
	}
}
