package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// useBufferWriters 把全局输出重定向到内存缓冲区，测试结束后恢复。
func useBufferWriters(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}

	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = outBuf, errBuf
	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return outBuf, errBuf
}

// writeMainConfig 在临时目录生成一份可通过校验的配置文件。
func writeMainConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	content := fmt.Sprintf(`ListenPort = 5000
LogLevel = "error"
StoragePath = %q

[Shell]
Upstream = "http://upstream.local"
CacheVersion = "app-shell-v1"
OfflinePath = "/offline.html"
Precache = []
RealtimeBypass = ["realtime.example.com"]
`, filepath.Join(dir, "storage"))

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	return path
}
