package bloom

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFilter_AddAndContains(t *testing.T) {
	f := NewWithEstimates(1000, 0.01)

	f.Add([]byte("chunks/topic-a/0001.chk"))
	f.Add([]byte("chunks/topic-a/0002.chk"))

	if !f.MaybeContains([]byte("chunks/topic-a/0001.chk")) {
		t.Error("added item must be reported present")
	}
	if f.Count() != 2 {
		t.Errorf("count = %d, want 2", f.Count())
	}
}

func TestFilter_MarshalRoundTrip(t *testing.T) {
	f := New(2048, 5)
	for i := 0; i < 100; i++ {
		f.Add([]byte(fmt.Sprintf("value-%d", i)))
	}

	restored, err := Unmarshal(f.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for i := 0; i < 100; i++ {
		if !restored.MaybeContains([]byte(fmt.Sprintf("value-%d", i))) {
			t.Fatalf("value-%d lost across marshal round trip", i)
		}
	}
	if restored.Count() != f.Count() {
		t.Errorf("count = %d, want %d", restored.Count(), f.Count())
	}
}

func TestFilter_MergeGeometryMismatch(t *testing.T) {
	a := New(1024, 5)
	b := New(2048, 5)
	if err := a.Merge(b); err == nil {
		t.Error("merging mismatched geometries should fail")
	}
}

func TestFilter_Merge(t *testing.T) {
	a := New(4096, 5)
	b := New(4096, 5)
	a.Add([]byte("left"))
	b.Add([]byte("right"))

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !a.MaybeContains([]byte("left")) || !a.MaybeContains([]byte("right")) {
		t.Error("merged filter must contain items from both sides")
	}
}

// No false negatives: every added value is always reported present, also
// after a marshal round trip and a merge.
func TestFilter_NoFalseNegativesProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("added values are always present", prop.ForAll(
		func(values []string) bool {
			f := NewWithEstimates(len(values)+1, 0.01)
			for _, v := range values {
				f.Add([]byte(v))
			}
			restored, err := Unmarshal(f.Marshal())
			if err != nil {
				return false
			}
			for _, v := range values {
				if !f.MaybeContains([]byte(v)) || !restored.MaybeContains([]byte(v)) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}
