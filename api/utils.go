package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// MaxErrorMessageLength caps error messages sent to clients
const MaxErrorMessageLength = 200

var (
	connStringPattern = regexp.MustCompile(`(?:mysql|postgres|postgresql|sqlite|redis|file)://[^\s"']+`)
	filePathPattern   = regexp.MustCompile(`(?:[A-Za-z]:\\|/)(?:[^\\/:*?"<>|\s]+[\\/ ])*[^\\/:*?"<>|\s]+`)
	privateIPPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:10|127)(?:\.\d{1,3}){3}(?::\d{1,5})?\b`),
		regexp.MustCompile(`\b172\.(?:1[6-9]|2[0-9]|3[01])(?:\.\d{1,3}){2}(?::\d{1,5})?\b`),
		regexp.MustCompile(`\b192\.168(?:\.\d{1,3}){2}(?::\d{1,5})?\b`),
	}
	secretPattern     = regexp.MustCompile(`(?i)(password|secret|token|key|credential|auth)[:=]\s*["']?[^"'\s]+["']?`)
	stackTracePattern = regexp.MustCompile(`(?m)^goroutine \d+.*$`)
)

// sanitizeErrorMessage strips connection strings, paths, private addresses
// and credentials from a client-facing message
func sanitizeErrorMessage(message string) string {
	message = connStringPattern.ReplaceAllString(message, "[DATABASE_CONNECTION]")
	message = filePathPattern.ReplaceAllString(message, "[FILE_PATH]")
	for _, p := range privateIPPatterns {
		message = p.ReplaceAllString(message, "[PRIVATE_IP]")
	}
	message = secretPattern.ReplaceAllString(message, "$1=[REDACTED]")
	message = stackTracePattern.ReplaceAllString(message, "[STACK_TRACE]")

	if len(message) > MaxErrorMessageLength {
		message = message[:MaxErrorMessageLength-3] + "..."
	}
	return message
}

// writeError logs the full error and sends the sanitized message to the client
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	if logger != nil {
		fields := []interface{}{"status_code", statusCode}
		if err != nil {
			fields = append(fields, "error", err.Error())
		}
		if statusCode >= http.StatusInternalServerError {
			logger.Errorw(message, fields...)
		} else {
			logger.Warnw(message, fields...)
		}
	}

	http.Error(w, sanitizeErrorMessage(message), statusCode)
}

// decodeJSONBodyWithLimit decodes a JSON body into v, rejecting unknown fields,
// trailing data and bodies larger than maxBytes. It writes the error response itself.
func decodeJSONBodyWithLimit(w http.ResponseWriter, r *http.Request, v interface{}, maxBytes int64, logger *zap.SugaredLogger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body too large (max %d bytes)", maxBytes), err, logger)
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid JSON", err, logger)
		return false
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid JSON: unexpected data after object", err, logger)
		return false
	}
	return true
}

// getRealIP extracts the client IP. Forwarding headers are only honoured when
// trustProxy is set and the direct peer is in trustedNetworks.
func getRealIP(r *http.Request, trustProxy bool, trustedNetworks []string) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}
	if !trustProxy || !isTrustedProxy(directIP, trustedNetworks) {
		return directIP
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// first entry is the original client
		ip := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}

	return directIP
}

// isTrustedProxy reports whether ip matches one of the networks (CIDR or exact IP)
func isTrustedProxy(ip string, trustedNetworks []string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, network := range trustedNetworks {
		if strings.Contains(network, "/") {
			_, ipNet, err := net.ParseCIDR(network)
			if err == nil && ipNet.Contains(parsedIP) {
				return true
			}
		} else if network == ip {
			return true
		}
	}
	return false
}
