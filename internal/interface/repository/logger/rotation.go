package logger

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupLayout はバックアップファイル名の末尾に付く時刻の書式
const backupLayout = "20060102150405.000"

// RotationConfig はログローテーションの設定を表す.
type RotationConfig struct {
	MaxSize    int64         // この大きさに達したら退避する. 0以下なら退避しない
	MaxAge     time.Duration // 退避時刻からの保持期間. 0以下なら無期限
	MaxBackups int           // 残すバックアップ数. 0以下なら無制限
}

// DefaultRotationConfig はデフォルトのログローテーション設定を返す.
func DefaultRotationConfig() *RotationConfig {
	return &RotationConfig{
		MaxSize:    100 << 20,
		MaxAge:     7 * 24 * time.Hour,
		MaxBackups: 5,
	}
}

// backup は退避済みのログファイル
type backup struct {
	path    string
	rotated time.Time
}

// oversized は書き込み中のファイルが上限に達したか判定する.
func oversized(f *os.File, maxSize int64) bool {
	if maxSize <= 0 {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Size() >= maxSize
}

// backupPath は filename を now の時刻で退避する先のパス.
func backupPath(dir, filename string, now time.Time) string {
	return filepath.Join(dir, filename+"."+now.Format(backupLayout))
}

// listBackups は filename のバックアップだけを新しい順に返す.
// 同じディレクトリにある別ファイルや、時刻の付かない同名ファイルは対象外.
func listBackups(dir, filename string) ([]backup, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	prefix := filename + "."
	var found []backup
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		rotated, err := time.ParseInLocation(backupLayout, strings.TrimPrefix(e.Name(), prefix), time.Local)
		if err != nil {
			continue
		}
		found = append(found, backup{path: filepath.Join(dir, e.Name()), rotated: rotated})
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].rotated.After(found[j].rotated)
	})
	return found, nil
}

// cleanOldLogs は MaxBackups を超えた分と MaxAge を過ぎた分のバックアップを削除する.
func cleanOldLogs(dir, filename string, config *RotationConfig) error {
	found, err := listBackups(dir, filename)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-config.MaxAge)
	var errs []error
	for i, b := range found {
		expired := config.MaxAge > 0 && b.rotated.Before(cutoff)
		surplus := config.MaxBackups > 0 && i >= config.MaxBackups
		if !expired && !surplus {
			continue
		}
		if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
