package bgpls

import (
	"fmt"
	"strings"
)

// FormatSystemID renders an IGP Router-ID in IS-IS system-id notation:
// xxxx.xxxx.xxxx, with a .xx pseudonode suffix at 7 bytes and a -xx
// fragment suffix at 8. Each call returns its own string; results never
// alias shared storage.
func FormatSystemID(id []byte) string {
	if id == nil {
		return "unknown"
	}
	if len(id) < 6 {
		return "Short ID"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%02x%02x.%02x%02x.%02x%02x", id[0], id[1], id[2], id[3], id[4], id[5])
	if len(id) > 6 {
		fmt.Fprintf(&b, ".%02x", id[6])
	}
	if len(id) > 7 {
		fmt.Fprintf(&b, "-%02x", id[7])
	}
	return b.String()
}

// FormatISONet renders an ISO network address with a dot after every byte
// pair: 49.0001.1921.6800.1001.00.
func FormatISONet(addr []byte) string {
	if addr == nil {
		return "unknown"
	}

	var b strings.Builder
	for i, v := range addr {
		if i%2 == 1 {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%02x", v)
	}
	return b.String()
}
