package models

const ellipsis = "..."

// TruncateString shortens s to at most n characters, ending the result with
// an ellipsis when anything was cut.
func TruncateString(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n < len(ellipsis) {
		return ellipsis[:max(n, 0)]
	}
	return string(runes[:n-len(ellipsis)]) + ellipsis
}
