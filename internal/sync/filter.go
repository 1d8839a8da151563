package sync

import (
	"log/slog"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// maxNameLength is OneDrive's limit for one path component.
const maxNameLength = 255

// alwaysExcludedSuffixes are never uploaded: partial downloads, editor
// temporaries and SQLite files, which corrupt if copied mid-transaction.
var alwaysExcludedSuffixes = []string{
	".partial", ".tmp", ".swp", ".crdownload",
	".db-wal", ".db-shm", ".db",
}

// Filter decides which local paths are mirrored. Built-in exclusions and
// OneDrive naming rules always apply; configured patterns use gitignore
// syntax.
type Filter struct {
	patterns *ignore.GitIgnore
	logger   *slog.Logger
}

// NewFilter compiles gitignore-style patterns. Blank lines and "#" comments
// are ignored.
func NewFilter(patterns []string, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}

	f := &Filter{logger: logger}
	if len(patterns) > 0 {
		f.patterns = ignore.CompileIgnoreLines(patterns...)
	}

	return f
}

// Excluded reports whether relPath (slash-separated, relative to the watched
// root) must not be mirrored.
func (f *Filter) Excluded(relPath string, isDir bool) bool {
	if relPath == "" || relPath == "." {
		return false
	}

	for _, comp := range strings.Split(relPath, "/") {
		if isAlwaysExcluded(comp) || !isValidOneDriveName(comp) {
			f.logger.Debug("path excluded", slog.String("path", relPath), slog.String("component", comp))
			return true
		}
	}

	if f.patterns == nil {
		return false
	}

	match := relPath
	if isDir {
		match += "/"
	}

	if f.patterns.MatchesPath(match) {
		f.logger.Debug("path excluded by pattern", slog.String("path", relPath))
		return true
	}

	return false
}

func isAlwaysExcluded(name string) bool {
	lower := strings.ToLower(name)

	for _, ext := range alwaysExcludedSuffixes {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	// Editor backups (~file), LibreOffice locks (.~lock) and Office temps (~$).
	return strings.HasPrefix(name, "~") || strings.HasPrefix(name, ".~")
}

// isValidOneDriveName rejects names OneDrive refuses to store.
func isValidOneDriveName(name string) bool {
	if name == "" || len(name) > maxNameLength {
		return false
	}

	if name[0] == ' ' || name[len(name)-1] == ' ' || name[len(name)-1] == '.' {
		return false
	}

	lower := strings.ToLower(name)

	switch lower {
	case "con", "prn", "aux", "nul", "desktop.ini":
		return false
	}

	if len(lower) == 4 && (strings.HasPrefix(lower, "com") || strings.HasPrefix(lower, "lpt")) &&
		lower[3] >= '0' && lower[3] <= '9' {
		return false
	}

	if strings.HasSuffix(lower, ".lock") || strings.Contains(lower, "_vti_") {
		return false
	}

	return !strings.ContainsAny(name, `"*:<>?/\|`)
}
