package auth

import "strings"

const maxRawDeviceLen = 100

// deviceName buckets a user agent into a coarse device label for session
// records. Unrecognized agents are truncated raw strings; an empty agent
// becomes "Unknown Device".
func deviceName(userAgent string) string {
	switch {
	case strings.Contains(userAgent, "Edg"):
		return "Edge Browser"
	case strings.Contains(userAgent, "Chrome"):
		return "Chrome Browser"
	case strings.Contains(userAgent, "Firefox"):
		return "Firefox Browser"
	case strings.Contains(userAgent, "Safari"):
		return "Safari Browser"
	}

	if userAgent == "" {
		return "Unknown Device"
	}
	if len(userAgent) > maxRawDeviceLen {
		return userAgent[:maxRawDeviceLen]
	}
	return userAgent
}
