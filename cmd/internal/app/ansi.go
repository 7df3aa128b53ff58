package app

import (
	"regexp"
	"strconv"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

func paint(s, code string, color bool) string {
	if !color || code == "" {
		return s
	}
	return code + s + ansiReset
}

func colorizeHTTPMethod(m string, color bool) string {
	code := ansiBlue
	switch m {
	case "GET", "HEAD":
		code = ansiGreen
	case "DELETE":
		code = ansiRed
	case "PUT", "PATCH":
		code = ansiYellow
	}
	return paint(m, code, color)
}

func colorizeStatusCode(status int, color bool) string {
	return paint(strconv.Itoa(status), statusColor(status), color)
}

func statusColor(status int) string {
	switch {
	case status >= 500 || status == 0:
		return ansiRed
	case status >= 400:
		return ansiYellow
	case status >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	code := ansiGreen
	switch {
	case ms >= 5000:
		code = ansiRed
	case ms >= 1000:
		code = ansiYellow
	}
	return paint(strconv.FormatInt(ms, 10)+"ms", code, color)
}

// colorizeResult styles outcome words such as refresh results and session states.
func colorizeResult(s string, color bool) string {
	switch s {
	case "success", "ok", "authenticated", "allow":
		return paint(s, ansiGreen, color)
	case "reused", "redirect", "loading", "pending":
		return paint(s, ansiCyan, color)
	case "failure", "server_error", "expired":
		return paint(s, ansiRed, color)
	case "client_error", "anonymous":
		return paint(s, ansiYellow, color)
	default:
		return s
	}
}
