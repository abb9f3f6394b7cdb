package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"linkpreview/internal/domain"
)

// Options はロガーの設定.
type Options struct {
	Level LogLevel
	JSON  bool
	// Dir が空の場合は Output (既定は標準エラー出力) に書き込む.
	Dir      string
	Filename string
	Rotation *RotationConfig
	Output   io.Writer
}

// Repository はロガーのリポジトリ実装.
type Repository struct {
	mu       sync.Mutex
	out      io.Writer
	file     *os.File
	config   *RotationConfig
	dir      string
	filename string
	level    LogLevel
	json     bool
	done     chan struct{}
}

// Verify interface implementation.
var _ domain.Logger = (*Repository)(nil)

// New は新しいRepositoryインスタンスを作成.
func New(opts Options) (*Repository, error) {
	if opts.Level == "" {
		opts.Level = INFO
	}

	logger := &Repository{
		level: opts.Level,
		json:  opts.JSON,
		done:  make(chan struct{}),
	}

	if opts.Dir == "" {
		logger.out = opts.Output
		if logger.out == nil {
			logger.out = os.Stderr
		}
		return logger, nil
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, err
	}
	if opts.Filename == "" {
		opts.Filename = "linkpreview.log"
	}
	if opts.Rotation == nil {
		opts.Rotation = DefaultRotationConfig()
	}

	file, err := os.OpenFile(filepath.Join(opts.Dir, opts.Filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	logger.file = file
	logger.out = file
	logger.config = opts.Rotation
	logger.dir = opts.Dir
	logger.filename = opts.Filename

	// ログクリーンアップを定期的に実行
	go logger.periodicCleanup()

	return logger, nil
}

// Debug はDEBUGレベルのログを記録.
func (r *Repository) Debug(msg string, fields map[string]interface{}) {
	r.log(NewLogEntry(DEBUG, msg, nil, fields))
}

// Info はINFOレベルのログを記録.
func (r *Repository) Info(msg string, fields map[string]interface{}) {
	r.log(NewLogEntry(INFO, msg, nil, fields))
}

// Warn はWARNレベルのログを記録.
func (r *Repository) Warn(msg string, fields map[string]interface{}) {
	r.log(NewLogEntry(WARN, msg, nil, fields))
}

// Error はERRORレベルのログを記録.
func (r *Repository) Error(
	msg string, err error, fields map[string]interface{},
) {
	r.log(NewLogEntry(ERROR, msg, err, fields))
}

// log はログエントリを書き込み.
func (r *Repository) log(entry *LogEntry) {
	if !entry.Level.Enabled(r.level) {
		return
	}

	formatted := entry.Format()
	if r.json {
		formatted = entry.FormatJSON()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil && oversized(r.file, r.config.MaxSize) {
		if err := r.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate log: %v\n", err)
		}
	}

	if _, err := io.WriteString(r.out, formatted); err != nil {
		// エラーが発生した場合は標準エラー出力に書き込み.
		fmt.Fprintf(os.Stderr, "Failed to write log: %v\n", err)
	}
}

// rotate は現在のファイルを時刻付きの名前へ退避し、新しいファイルを開く.
// 退避のたびに上限を超えたバックアップを整理する.
func (r *Repository) rotate() error {
	current := filepath.Join(r.dir, r.filename)
	if err := r.file.Close(); err != nil {
		return err
	}
	// 退避に失敗しても同じファイルを開き直して書き込みを続ける
	renameErr := os.Rename(current, backupPath(r.dir, r.filename, time.Now()))

	file, err := os.OpenFile(current, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	r.file = file
	r.out = file

	if renameErr != nil {
		return renameErr
	}
	return cleanOldLogs(r.dir, r.filename, r.config)
}

// periodicCleanup は定期的に古いログファイルを削除.
func (r *Repository) periodicCleanup() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleanOldLogs(r.dir, r.filename, r.config)
		case <-r.done:
			return
		}
	}
}

// Close はロガーのリソースを解放.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	default:
		close(r.done)
	}

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
