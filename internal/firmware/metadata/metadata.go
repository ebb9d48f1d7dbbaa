package metadata

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/meatloaf/meatloaf-packager/internal/logger"
)

const (
	// NoGit replaces the commit hash when git is unavailable.
	NoGit = "NOGIT"
	// BuildDateLayout formats Info.BuildDate.
	BuildDateLayout = "2006-01-02 15:04:05"
)

// Info is the version metadata of one packaging run.
type Info struct {
	// Defines holds every define of the header plus the computed keys.
	Defines Defines
	// Full is FN_VERSION_FULL.
	Full string
	// Date is FN_VERSION_DATE.
	Date string
	// Description is the single-line commit message, or Full.
	Description string
	// Commit is the short commit hash, or NoGit.
	Commit string
	// BuildDate is the packaging time in BuildDateLayout.
	BuildDate string
}

// Collect builds Info from parsed defines, version control and the packaging time.
func Collect(ctx context.Context, defines Defines, vcs VCS, now time.Time) (*Info, error) {
	full, err := defines.Lookup(KeyVersionFull)
	if err != nil {
		return nil, err
	}

	date, err := defines.Lookup(KeyVersionDate)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Defines:     make(Defines, len(defines)+3),
		Full:        full,
		Date:        date,
		Description: full,
		Commit:      NoGit,
		BuildDate:   now.Format(BuildDateLayout),
	}

	maps.Copy(info.Defines, defines)

	if message, msgErr := vcs.CommitMessage(ctx); msgErr != nil {
		logger.WarnKV(ctx, "Commit message unavailable, using full version", "error", msgErr)
	} else if desc := singleLine(message); desc != "" {
		info.Description = desc
	}

	if hash, hashErr := vcs.ShortHash(ctx); hashErr != nil {
		logger.WarnKV(ctx, "Commit hash unavailable", "error", hashErr, "fallback", NoGit)
	} else {
		info.Commit = hash
	}

	info.Defines[KeyVersionDesc] = info.Description
	info.Defines[KeyVersionBuild] = info.Commit
	info.Defines[KeyBuildDate] = info.BuildDate

	return info, nil
}

// singleLine turns every newline into a space and trims the ends.
func singleLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
