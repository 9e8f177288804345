package ewf

import (
	"slices"
	"testing"
)

func TestValuesInsertionOrder(t *testing.T) {
	v := NewValues()
	v.Set("case_number", "C-1")
	v.Set("evidence_number", "E-7")
	v.Set("acquiry_date", "2024 03 15 10 20 30")
	v.Set("case_number", "C-2") // update must not reorder

	want := []string{"case_number", "evidence_number", "acquiry_date"}
	if got := v.Identifiers(); !slices.Equal(got, want) {
		t.Errorf("identifiers = %v, want %v", got, want)
	}
	if got, _ := v.Get("case_number"); got != "C-2" {
		t.Errorf("case_number = %q, want %q", got, "C-2")
	}
}

func TestValuesDelete(t *testing.T) {
	v := NewValues()
	v.Set("a", "1")
	v.Set("b", "2")
	v.Set("c", "3")
	v.Delete("b")

	if _, ok := v.Get("b"); ok {
		t.Error("deleted identifier still present")
	}
	if got := v.Identifiers(); !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("identifiers = %v after delete", got)
	}
	v.Delete("nope") // no-op
	if v.Len() != 2 {
		t.Errorf("len = %d, want 2", v.Len())
	}
}

func TestValuesClone(t *testing.T) {
	v := NewValues()
	v.Set("a", "1")
	c := v.Clone()
	c.Set("a", "2")
	c.Set("b", "3")

	if got, _ := v.Get("a"); got != "1" {
		t.Errorf("original mutated through clone: a = %q", got)
	}
	if v.Len() != 1 {
		t.Errorf("original len = %d, want 1", v.Len())
	}
}

func TestAppendRangeMerges(t *testing.T) {
	tests := []struct {
		name string
		in   []SectorRange
		want []SectorRange
	}{
		{
			name: "adjacent runs merge",
			in:   []SectorRange{{0, 64}, {64, 64}},
			want: []SectorRange{{0, 128}},
		},
		{
			name: "gap keeps runs apart",
			in:   []SectorRange{{0, 64}, {256, 64}},
			want: []SectorRange{{0, 64}, {256, 64}},
		},
		{
			name: "duplicate collapses",
			in:   []SectorRange{{0, 64}, {0, 64}},
			want: []SectorRange{{0, 64}},
		},
		{
			name: "zero count dropped",
			in:   []SectorRange{{0, 64}, {64, 0}},
			want: []SectorRange{{0, 64}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []SectorRange
			for _, r := range tt.in {
				got = AppendRange(got, r)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
