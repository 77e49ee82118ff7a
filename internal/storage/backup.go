package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pstuifzand/section-outliner/internal/model"
)

// BackupExt is the extension of backup files
const BackupExt = ".outline"

// BackupManager keeps timestamped copies of document files before they are
// overwritten
type BackupManager struct {
	backupDir string
	now       func() time.Time
}

// NewBackupManager creates a backup manager writing into dir. An empty dir
// selects the default backup directory.
func NewBackupManager(dir string) (*BackupManager, error) {
	if dir == "" {
		dir = getBackupDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &BackupManager{
		backupDir: dir,
		now:       time.Now,
	}, nil
}

// Dir returns the directory backups are written to
func (bm *BackupManager) Dir() string {
	return bm.backupDir
}

// backupFile is the on-disk form of a backup: the document plus the file it
// was taken from
type backupFile struct {
	OriginalFilename string          `json:"originalFilename"`
	CreatedAt        time.Time       `json:"createdAt"`
	Document         *model.Document `json:"document"`
}

// CreateBackup writes a timestamped backup of doc and returns its path
func (bm *BackupManager) CreateBackup(doc *model.Document, originalPath string, sessionID string) (string, error) {
	filename := bm.generateBackupFilename(sessionID)

	// Convert original path to absolute path before storing
	absPath, err := filepath.Abs(originalPath)
	if err != nil {
		absPath = originalPath
	}

	data, err := json.MarshalIndent(backupFile{
		OriginalFilename: absPath,
		CreatedAt:        bm.now().UTC(),
		Document:         doc,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal backup JSON: %w", err)
	}

	backupPath := filepath.Join(bm.backupDir, filename)
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write backup file: %w", err)
	}
	return backupPath, nil
}

// BackupFile copies the document stored at path into a backup. A missing
// file needs no backup and returns an empty path.
func (bm *BackupManager) BackupFile(path string, sessionID string, c LegacyConverter) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	doc, _, err := Decode(data, c)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return bm.CreateBackup(doc, path, sessionID)
}

// generateBackupFilename creates a filename in the format: YYYYMMDD_HHMMSS_<sessionID>.outline
func (bm *BackupManager) generateBackupFilename(sessionID string) string {
	timestamp := bm.now().Format("20060102_150405")
	return fmt.Sprintf("%s_%s%s", timestamp, sessionID, BackupExt)
}

// NewSessionID returns a short random id that groups the backups of one run
func NewSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// getBackupDir returns the path to the backup directory
func getBackupDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to /tmp if home directory cannot be determined
		return filepath.Join("/tmp", ".section-outliner", "backups")
	}
	return filepath.Join(homeDir, ".local", "share", "section-outliner", "backups")
}

// GetBackupDir is a public function to get the backup directory
func GetBackupDir() string {
	return getBackupDir()
}

// IsBackupFile reports whether path names a file in the default backup
// directory
func IsBackupFile(path string) bool {
	if path == "" || filepath.Ext(path) != BackupExt {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return filepath.Dir(abs) == filepath.Clean(getBackupDir())
}

// BackupMetadata holds parsed information about a backup file
type BackupMetadata struct {
	FilePath     string    // Full path to backup file
	Timestamp    time.Time // Parsed timestamp from filename
	SessionID    string    // 8-character session ID
	OriginalFile string    // Original filename stored in backup
}

// FindBackupsForFile returns all backup files for a given original filename, sorted chronologically
func (bm *BackupManager) FindBackupsForFile(originalFilePath string) ([]BackupMetadata, error) {
	entries, err := os.ReadDir(bm.backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupMetadata

	// Normalize the search path to absolute for consistent comparison
	var searchPath string
	if originalFilePath != "" {
		absPath, err := filepath.Abs(originalFilePath)
		if err != nil {
			searchPath = originalFilePath
		} else {
			searchPath = filepath.Clean(absPath)
		}
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), BackupExt) {
			continue
		}

		metadata, err := parseBackupFilename(entry.Name(), filepath.Join(bm.backupDir, entry.Name()))
		if err != nil {
			continue // Skip files that can't be parsed
		}

		if searchPath != "" && filepath.Clean(metadata.OriginalFile) != searchPath {
			continue
		}

		backups = append(backups, metadata)
	}

	sortBackupsByTimestamp(backups)
	return backups, nil
}

// LoadBackup reads the document stored in a backup file
func LoadBackup(path string) (*model.Document, BackupMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, BackupMetadata{}, fmt.Errorf("failed to read backup: %w", err)
	}
	var file backupFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, BackupMetadata{}, fmt.Errorf("failed to parse backup: %w", err)
	}
	if file.Document == nil {
		return nil, BackupMetadata{}, fmt.Errorf("%w: backup holds no document", model.ErrInvalidDocument)
	}
	meta := BackupMetadata{FilePath: path, Timestamp: file.CreatedAt, OriginalFile: file.OriginalFilename}
	if parsed, err := parseBackupName(filepath.Base(path)); err == nil {
		meta.SessionID = parsed.SessionID
	}
	return file.Document, meta, nil
}

// parseBackupFilename extracts metadata from a backup filename and reads the
// original filename from the file
func parseBackupFilename(filename string, fullPath string) (BackupMetadata, error) {
	metadata, err := parseBackupName(filename)
	if err != nil {
		return BackupMetadata{}, err
	}
	metadata.FilePath = fullPath

	data, err := os.ReadFile(fullPath)
	if err == nil {
		var header struct {
			OriginalFilename string `json:"originalFilename"`
		}
		if err := json.Unmarshal(data, &header); err == nil {
			metadata.OriginalFile = header.OriginalFilename
		}
	}
	return metadata, nil
}

// parseBackupName parses YYYYMMDD_HHMMSS_<sessionID>.outline
func parseBackupName(filename string) (BackupMetadata, error) {
	name := strings.TrimSuffix(filename, BackupExt)
	if len(name) < 16+8 || name[15] != '_' {
		return BackupMetadata{}, fmt.Errorf("filename too short")
	}
	timestamp, err := time.ParseInLocation("20060102_150405", name[:15], time.Local)
	if err != nil {
		return BackupMetadata{}, fmt.Errorf("invalid timestamp format: %w", err)
	}
	return BackupMetadata{
		Timestamp: timestamp,
		SessionID: name[16:],
	}, nil
}

// sortBackupsByTimestamp sorts backups chronologically (oldest first)
func sortBackupsByTimestamp(backups []BackupMetadata) {
	slices.SortFunc(backups, func(a, b BackupMetadata) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
}
