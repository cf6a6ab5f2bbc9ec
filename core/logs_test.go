package transcript

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type lockedBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buffer.Write(p)
}

func (b *lockedBuffer) contains(substrings ...string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	output := b.buffer.String()
	for _, s := range substrings {
		if !strings.Contains(output, s) {
			return false
		}
	}
	return true
}

var (
	packageLogsOnce sync.Once
	packageLogs     = &lockedBuffer{}
)

// capturePackageLogs routes the package logger into a buffer shared by every
// test in the package. The global provider only delegates once, so tests tell
// their records apart by conversation ID.
func capturePackageLogs(t *testing.T) *lockedBuffer {
	t.Helper()

	var err error
	packageLogsOnce.Do(func() {
		var exporter *stdoutlog.Exporter
		exporter, err = stdoutlog.New(stdoutlog.WithWriter(packageLogs))
		if err != nil {
			return
		}
		global.SetLoggerProvider(sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewSimpleProcessor(exporter)),
		))
	})
	if err != nil {
		t.Fatalf("failed to capture logs: %v", err)
	}
	return packageLogs
}
