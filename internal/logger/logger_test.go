package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func TestResolveLogFilePathDefaultDir(t *testing.T) {
	tmpDir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("get wd failed: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	got, err := resolveLogFilePath(Options{})
	if err != nil {
		t.Fatalf("resolve default log path failed: %v", err)
	}

	realTmpDir, err := filepath.EvalSymlinks(tmpDir)
	if err != nil {
		t.Fatalf("resolve tmp dir symlink failed: %v", err)
	}
	realGot, err := filepath.EvalSymlinks(filepath.Dir(got))
	if err != nil {
		t.Fatalf("resolve got dir symlink failed: %v", err)
	}
	if realGot != filepath.Join(realTmpDir, defaultLogDirName) {
		t.Fatalf("unexpected log dir: %s", realGot)
	}
	if filepath.Base(got) != defaultLogFilename {
		t.Fatalf("unexpected log filename: %s", filepath.Base(got))
	}
}

func TestNewReleaseWritesServiceField(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("release", Options{Dir: tmpDir, Filename: "release.log"})
	log.Info("purchase_created")
	_ = log.Sync()

	content, err := os.ReadFile(filepath.Join(tmpDir, "release.log"))
	if err != nil {
		t.Fatalf("read release log failed: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, "purchase_created") {
		t.Fatalf("expected message in log, got=%s", text)
	}
	if !strings.Contains(text, `"service":"voucher-ledger"`) {
		t.Fatalf("expected service field in log, got=%s", text)
	}
}

func TestNewDebugDoesNotWriteFile(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("debug", Options{Dir: tmpDir, Filename: "debug.log"})
	log.Info("debug-log-test")
	_ = log.Sync()

	if _, err := os.Stat(filepath.Join(tmpDir, "debug.log")); !os.IsNotExist(err) {
		t.Fatalf("debug mode should not create log file")
	}
}

func TestGormLoggerLogMode(t *testing.T) {
	base := NewGormLogger(false)
	if base.level != gormlogger.Warn {
		t.Fatalf("default level want warn got %v", base.level)
	}
	silent := base.LogMode(gormlogger.Silent).(*GormLogger)
	if silent.level != gormlogger.Silent {
		t.Fatalf("log mode should change level")
	}
	if base.level != gormlogger.Warn {
		t.Fatalf("log mode should not mutate receiver")
	}
	if NewGormLogger(true).level != gormlogger.Info {
		t.Fatalf("debug gorm logger should log info")
	}
}

func TestResolveLevel(t *testing.T) {
	if lvl := resolveLevel("", false).Level(); lvl != zapcore.InfoLevel {
		t.Fatalf("release default want info got %s", lvl)
	}
	if lvl := resolveLevel("", true).Level(); lvl != zapcore.DebugLevel {
		t.Fatalf("debug default want debug got %s", lvl)
	}
	if lvl := resolveLevel(" warn ", false).Level(); lvl != zapcore.WarnLevel {
		t.Fatalf("explicit level want warn got %s", lvl)
	}
	if lvl := resolveLevel("verbose", false).Level(); lvl != zapcore.InfoLevel {
		t.Fatalf("unknown level should fall back to info got %s", lvl)
	}
}

func TestNewReleaseRespectsLevel(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("release", Options{Level: "warn", Dir: tmpDir, Filename: "warn.log"})
	log.Info("stock_decremented")
	log.Warn("stock_low")
	_ = log.Sync()

	content, err := os.ReadFile(filepath.Join(tmpDir, "warn.log"))
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	text := string(content)
	if strings.Contains(text, "stock_decremented") || !strings.Contains(text, "stock_low") {
		t.Fatalf("warn level should drop info entries, got=%s", text)
	}
}
