package utils

// MaskSensitive hides the middle of a secret for log output.
func MaskSensitive(text string) string {
	if len(text) <= 6 {
		return mask(len(text))
	}
	return text[:3] + mask(len(text)-6) + text[len(text)-3:]
}

func mask(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = '*'
	}
	return string(out)
}
