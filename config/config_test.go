package config

import "testing"

func TestParseAdminIDs(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []int64
	}{
		{"single", "5838432507", []int64{5838432507}},
		{"multiple with spaces", "1, 2 ,3", []int64{1, 2, 3}},
		{"skips junk", "1,abc,2", []int64{1, 2}},
		{"empty", "", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseAdminIDs(tc.raw)
			if len(got) != len(tc.want) {
				t.Fatalf("parseAdminIDs(%q) = %v, want %v", tc.raw, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("parseAdminIDs(%q)[%d] = %d, want %d", tc.raw, i, got[i], tc.want[i])
				}
			}
		})
	}
}
