package tgui

import (
	"strings"
)

// Callback data is packed as "ns:action[:arg...]". Telegram caps callback
// payloads at 64 bytes, so args must stay short — numeric indices, never
// free-form names.

// Pack joins a namespace, action and args into callback data.
func Pack(ns, action string, args ...string) string {
	parts := make([]string, 0, 2+len(args))
	parts = append(parts, strings.TrimSpace(ns), strings.TrimSpace(action))
	parts = append(parts, args...)
	return strings.Join(parts, ":")
}

// Unpack splits callback data produced by Pack. ok is false for data that
// doesn't carry at least "ns:action".
func Unpack(data string) (ns, action string, args []string, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", nil, false
	}
	return parts[0], parts[1], parts[2:], true
}
