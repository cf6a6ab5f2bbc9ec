package utils

func Ptr[T any](v T) *T { return &v }

// Truncate shortens s to at most n runes, appending "..." when it cut anything.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
