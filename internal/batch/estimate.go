package batch

import (
	"fmt"
	"path/filepath"
	"strings"

	"recruit-go/internal/constants"
)

var archiveExtensions = map[string]bool{
	".zip": true,
	".rar": true,
	".7z":  true,
	".tar": true,
	".gz":  true,
	".tgz": true,
}

// IsArchive 按扩展名判断是否为压缩包
func IsArchive(fileName string) bool {
	return archiveExtensions[strings.ToLower(filepath.Ext(fileName))]
}

// EstimateCandidates 估算文件中的简历数量。压缩包按每 200KiB 一份计算，至少 1 份，最多 50 份；其他文件为 1。
func EstimateCandidates(fileName string, fileSize *int64) int {
	if !IsArchive(fileName) || fileSize == nil {
		return 1
	}
	n := int(*fileSize / constants.ArchiveBytesPerCandidate)
	if n < 1 {
		return 1
	}
	if n > constants.MaxCandidatesPerArchive {
		return constants.MaxCandidatesPerArchive
	}
	return n
}

// candidateFileNames 为一次上传生成候选文件名
func candidateFileNames(fileName string, total int) []string {
	if !IsArchive(fileName) {
		return []string{fileName}
	}
	base := filepath.Base(fileName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.TrimSuffix(stem, ".tar")
	names := make([]string, total)
	for i := range names {
		names[i] = fmt.Sprintf("%s/resume_%03d.pdf", stem, i+1)
	}
	return names
}
