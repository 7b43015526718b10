package utils

const hexDigits = "0123456789ABCDEF"

// Hex4 formats a uint16 as 4 uppercase hex digits (e.g. "FFFF").
func Hex4(v uint16) string {
	return string([]byte{
		hexDigits[(v>>12)&0xF],
		hexDigits[(v>>8)&0xF],
		hexDigits[(v>>4)&0xF],
		hexDigits[v&0xF],
	})
}

// BytesToHex renders b as uppercase hex, two digits per byte. Tag UIDs are
// printed this way everywhere.
func BytesToHex(b []byte) string {
	out := make([]byte, 0, len(b)*2)
	for _, x := range b {
		out = append(out, hexDigits[x>>4], hexDigits[x&0x0F])
	}
	return string(out)
}

// Truncate cuts s to at most n bytes for log output.
func Truncate(s string, n int) string {
	if n < 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
