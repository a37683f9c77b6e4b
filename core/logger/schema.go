package logger

import "strings"

var allowedLevels = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

var allowedStatus = map[string]string{
	"ok":           "ok",
	"fail":         "fail",
	"skip":         "skip",
	"rate_limited": "rate_limited",
	"cancelled":    "cancelled",
}

// outcome values mirror dispatch.Outcome plus the handler summary states.
var allowedOutcome = map[string]string{
	"ok":        "ok",
	"fail":      "fail",
	"replied":   "replied",
	"ignored":   "ignored",
	"failed":    "failed",
	"unknown":   "unknown",
	"cancelled": "cancelled",
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if mapped, ok := allowedStatus[status]; ok {
		return mapped
	}
	return status
}

func normalizeOutcome(outcome string) (string, bool) {
	val, ok := allowedOutcome[strings.ToLower(strings.TrimSpace(outcome))]
	return val, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"request_id",
	"ts_unix_nano",
	"update_id",
	"chat_id",
	"chat_type",
	"update_kind",
	"handler",
	"command",
	"cb_kind",
	"kind",
	"symbol",
	"interval",
	"outcome",
	"duration_ms",
	"http_code",
	"bytes",
	"payload",
	"mode",
	"listen",
	"public_url",
	"db",
	"host",
	"port",
	"err",
	"err_code",
	"cause",
}
