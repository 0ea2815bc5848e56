package yaml

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	yamlv3 "gopkg.in/yaml.v3"
)

// Quarantine moves filePath into <baseDir>/quarantine and returns the new path.
func Quarantine(baseDir, filePath string) (string, error) {
	quarantineDir := filepath.Join(baseDir, "quarantine")
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}

	baseName := filepath.Base(filePath)
	timestamp := time.Now().Format("20060102T150405.000000000")
	quarantinePath := filepath.Join(quarantineDir, fmt.Sprintf("%s.%s.corrupt", baseName, timestamp))

	if err := os.Rename(filePath, quarantinePath); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return quarantinePath, nil
}

func GenerateSkeleton(filePath string, fileType string) error {
	content, err := yamlv3.Marshal(generateSkeletonForType(fileType))
	if err != nil {
		return fmt.Errorf("marshal skeleton: %w", err)
	}
	if err := AtomicWriteFile(filePath, content); err != nil {
		return fmt.Errorf("write skeleton: %w", err)
	}
	return nil
}

// RecoverCorruptedFile quarantines the file and replaces it with an empty
// skeleton. The .bak copy is deliberately not restored for queue files: it
// holds the list before the last dequeue and would re-deliver that task.
func RecoverCorruptedFile(baseDir, filePath, fileType string) (string, error) {
	quarantined, err := Quarantine(baseDir, filePath)
	if err != nil {
		return "", fmt.Errorf("quarantine failed: %w", err)
	}
	if err := GenerateSkeleton(filePath, fileType); err != nil {
		return quarantined, fmt.Errorf("skeleton generation failed: %w", err)
	}
	return quarantined, nil
}

func generateSkeletonForType(fileType string) any {
	switch fileType {
	case FileTypeTaskQueue:
		return map[string]any{
			"schema_version": CurrentSchemaVersion,
			"file_type":      FileTypeTaskQueue,
			"tasks":          []any{},
		}
	default:
		return map[string]any{
			"schema_version": CurrentSchemaVersion,
			"file_type":      fileType,
		}
	}
}
