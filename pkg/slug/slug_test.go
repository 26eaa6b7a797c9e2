package slug

import "testing"

func TestMake(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Mina", "mina"},
		{"Mina's Mother", "minas_mother"},
		{"  Rooftop   Garden ", "rooftop_garden"},
		{"Café Été", "cafe_ete"},
		{"half-moon bay", "half_moon_bay"},
		{"___", ""},
		{"A Very Long Location Name That Keeps Going", "a_very_long_location_name_that"},
	}
	for _, c := range cases {
		if got := Make(c.in); got != c.want {
			t.Fatalf("Make(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestPrefixes(t *testing.T) {
	if got := Character("Mina"); got != "char_mina" {
		t.Fatalf("Character = %q", got)
	}
	if got := Location("Rooftop Garden"); got != "loc_rooftop_garden" {
		t.Fatalf("Location = %q", got)
	}
}
