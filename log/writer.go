package log

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Writer 日志输出器
type Writer interface {
	io.Writer
	io.Closer
}

// NewWriter 根据目标创建输出器
// stdout、stderr 输出到控制台，其他值视为文件路径，多个目标用逗号分隔
func NewWriter(output string) (Writer, error) {
	var writers []Writer
	for _, target := range strings.Split(output, ",") {
		target = strings.TrimSpace(target)
		var w Writer
		switch target {
		case "", "stdout":
			w = &consoleWriter{w: os.Stdout}
		case "stderr":
			w = &consoleWriter{w: os.Stderr}
		default:
			fw, err := NewFileWriter(target)
			if err != nil {
				_ = multiWriter(writers).Close()
				return nil, err
			}
			w = fw
		}
		writers = append(writers, w)
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return multiWriter(writers), nil
}

// consoleWriter 控制台不需要关闭
type consoleWriter struct {
	w io.Writer
}

func (c *consoleWriter) Write(p []byte) (int, error) { return c.w.Write(p) }

func (c *consoleWriter) Close() error { return nil }

// FileWriter 追加写入文件
type FileWriter struct {
	mu   sync.Mutex
	file *os.File
}

func NewFileWriter(path string) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrapf(err, "create directory for %s", path)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	return &FileWriter{file: file}, nil
}

func (f *FileWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return 0, errors.New("file is closed")
	}
	return f.file.Write(p)
}

func (f *FileWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

type multiWriter []Writer

func (m multiWriter) Write(p []byte) (int, error) {
	for i, w := range m {
		if _, err := w.Write(p); err != nil {
			return 0, errors.Wrapf(err, "writer %d", i)
		}
	}
	return len(p), nil
}

func (m multiWriter) Close() error {
	var lastErr error
	for _, w := range m {
		if err := w.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
