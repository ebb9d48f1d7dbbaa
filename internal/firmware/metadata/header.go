package metadata

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Names of the defines read from the version header, and of the computed fields.
const (
	KeyVersionFull  = "FN_VERSION_FULL"
	KeyVersionDate  = "FN_VERSION_DATE"
	KeyVersionDesc  = "FN_VERSION_DESC"
	KeyVersionBuild = "FN_VERSION_BUILD"
	KeyBuildDate    = "BUILD_DATE"
)

// defineLine matches `#define NAME value` and `#define NAME "value"`.
var defineLine = regexp.MustCompile(`^\s*#define\s+(\w+)\s+"?([^"\r\n]+)"?`)

// Defines maps macro names to their values.
type Defines map[string]string

// Lookup returns the value of name or a *MissingDefineError.
func (d Defines) Lookup(name string) (string, error) {
	value, ok := d[name]
	if !ok {
		return "", &MissingDefineError{Name: name}
	}

	return value, nil
}

// MissingDefineError reports a define the manifest needs but the header lacks.
type MissingDefineError struct {
	Name string
}

func (e *MissingDefineError) Error() string {
	return fmt.Sprintf("version header does not define %s", e.Name)
}

// ParseHeaderFile parses the defines of the header at path.
func ParseHeaderFile(path string) (Defines, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open version header: %w", err)
	}

	defer func() { _ = f.Close() }()

	return ParseHeader(f)
}

// ParseHeader collects every #define line of r. Other lines are ignored and a
// repeated name keeps its last value.
func ParseHeader(r io.Reader) (Defines, error) {
	defines := make(Defines)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		m := defineLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}

		value := strings.TrimSpace(m[2])
		if value == "" {
			continue
		}

		defines[m[1]] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read version header: %w", err)
	}

	return defines, nil
}
