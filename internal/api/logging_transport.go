package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

var (
	transportsMu     sync.Mutex
	activeTransports []*LoggingTransport

	authHeaderPattern = regexp.MustCompile(`(?mi)^(Authorization:\s*Bearer\s+)\S+`)
)

// LoggingTransport wraps an http.RoundTripper to log request and response details.
// Bearer tokens are redacted and auth or multipart bodies are never written.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	mu        sync.Mutex
	writer    *bufio.Writer
	closed    bool
}

// NewLoggingTransport creates a new LoggingTransport appending to logFilePath.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", logFilePath, err)
	}

	if transport == nil {
		transport = http.DefaultTransport
	}

	t := &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}
	transportsMu.Lock()
	activeTransports = append(activeTransports, t)
	transportsMu.Unlock()
	return t, nil
}

// CloseAllLoggingTransports flushes and closes every transport opened by
// NewLoggingTransport.
func CloseAllLoggingTransports() {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	for _, t := range activeTransports {
		if err := t.Close(); err != nil {
			log.WithError(err).Error("Error closing API log file")
		}
	}
	activeTransports = nil
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	startTime := time.Now()
	sensitive := isSensitivePath(req.URL.Path)
	logReqBody := !sensitive && !strings.HasPrefix(req.Header.Get("Content-Type"), "multipart/")

	reqDump, err := httputil.DumpRequestOut(req, logReqBody)
	if err != nil {
		log.WithError(err).Error("Failed to dump API request for logging")
	} else {
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s\n", startTime.Format(time.RFC3339), redact(reqDump)))
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error (%s, Duration: %v) ---\n%s\n", time.Now().Format(time.RFC3339), duration, err.Error()))
		t.flush()
		return resp, err
	}

	contentType := resp.Header.Get("Content-Type")
	logBody := !sensitive && strings.HasPrefix(contentType, "application/json")
	respDump, dumpErr := httputil.DumpResponse(resp, false)
	if dumpErr != nil {
		log.WithError(dumpErr).Error("Failed to dump response headers for logging")
		respDump = []byte("Status: " + resp.Status)
	}

	if logBody {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		// The caller still needs to read the body.
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		if readErr != nil {
			log.WithError(readErr).Error("Failed to read response body for logging")
			t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s\n(Body read failed)\n", time.Now().Format(time.RFC3339), duration, string(respDump)))
		} else {
			t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v) ---\n%s\n--- Response Body (%s) ---\n%s\n", time.Now().Format(time.RFC3339), duration, string(respDump), contentType, string(bodyBytes)))
		}
	} else {
		t.writeLog(fmt.Sprintf("--- Response Headers (%s, Duration: %v, Type: %s) ---\n%s\n(Body not logged)\n", time.Now().Format(time.RFC3339), duration, contentType, string(respDump)))
	}

	t.flush()
	return resp, nil
}

func isSensitivePath(path string) bool {
	return strings.Contains(path, "/auth/")
}

func redact(dump []byte) string {
	return authHeaderPattern.ReplaceAllString(string(dump), "${1}[REDACTED]")
}

func (t *LoggingTransport) flush() {
	if t.closed {
		return
	}
	if err := t.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing API log file: %v\n", err)
	}
}

// writeLog writes a string to the buffered writer.
func (t *LoggingTransport) writeLog(logString string) {
	if t.closed {
		return
	}
	_, err := t.writer.WriteString(logString + "\n\n")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\nLog message: %s\n", err, logString)
	}
}

// Close flushes and closes the underlying log file. Safe to call twice.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}
