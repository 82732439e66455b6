package bgpls

import "testing"

func TestFormatSystemID(t *testing.T) {
	cases := []struct {
		name string
		id   []byte
		want string
	}{
		{"nil", nil, "unknown"},
		{"short", []byte{1, 2, 3}, "Short ID"},
		{"plain", []byte{0x19, 0x21, 0x68, 0x00, 0x10, 0x01}, "1921.6800.1001"},
		{"pseudonode", []byte{0x19, 0x21, 0x68, 0x00, 0x10, 0x01, 0x02}, "1921.6800.1001.02"},
		{"fragment", []byte{0x19, 0x21, 0x68, 0x00, 0x10, 0x01, 0x02, 0x03}, "1921.6800.1001.02-03"},
	}
	for _, tc := range cases {
		if got := FormatSystemID(tc.id); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestFormatSystemID_OwnedResult(t *testing.T) {
	id := []byte{0x19, 0x21, 0x68, 0x00, 0x10, 0x01}
	a := FormatSystemID(id)
	id[0] = 0xFF
	b := FormatSystemID(id)

	if a == b {
		t.Errorf("results must not alias: %q vs %q", a, b)
	}
	if a != "1921.6800.1001" {
		t.Errorf("first result changed after input mutation: %q", a)
	}
}

func TestFormatISONet(t *testing.T) {
	cases := []struct {
		name string
		addr []byte
		want string
	}{
		{"nil", nil, "unknown"},
		{"single", []byte{0x49}, "49"},
		{"even", []byte{0x49, 0x00, 0x01, 0x19, 0x21, 0x68}, "49.0001.1921.68"},
		{"odd", []byte{0x49, 0x00, 0x01, 0x19, 0x21, 0x68, 0x00}, "49.0001.1921.6800"},
	}
	for _, tc := range cases {
		if got := FormatISONet(tc.addr); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}
