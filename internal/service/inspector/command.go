package inspector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/meatloaf/meatloaf-packager/internal/firmware/archive"
	"github.com/meatloaf/meatloaf-packager/internal/firmware/image"
	"github.com/meatloaf/meatloaf-packager/internal/firmware/release"
	"github.com/meatloaf/meatloaf-packager/internal/logger"
)

// ArchiveReport describes a release archive.
type ArchiveReport struct {
	Entries []archive.EntryInfo
	// Missing lists canonical entry names absent from the archive.
	Missing []string
	// Manifest is the decoded release.json, nil when absent.
	Manifest *release.Manifest
	// ManifestDigest is the canonical sha256 of release.json.
	ManifestDigest string
}

// InspectImage decodes the header of the image at path and logs what it found.
// The raw bytes are logged even when decoding fails.
func InspectImage(ctx context.Context, path string) (*image.Info, error) {
	info, err := image.Inspect(path)
	if info != nil {
		h := &info.Header
		logger.Infof(ctx, "Common: [%s]", h.CommonHex())
		logger.Infof(ctx, "Extended: [%s]", h.ExtendedHex())
		logger.Infof(ctx, "magic 0x%02X, spi_size 0x%02X, chip_id 0x%02X", h.Magic(), h.SPISize(), h.ChipID())
	}

	if err != nil {
		logger.ErrorKV(ctx, "Image rejected", "path", path, "error", err)
		return nil, err
	}

	logger.InfoKV(ctx, "Image identified", "chip", info.Chip, "flash_size", info.FlashSize)

	return info, nil
}

// InspectArchive reads the archive at path.
func InspectArchive(ctx context.Context, path string) (*ArchiveReport, error) {
	entries, err := archive.List(path)
	if err != nil {
		return nil, err
	}

	report := &ArchiveReport{Entries: entries}

	present := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		present[e.Name] = struct{}{}
	}

	for _, name := range archive.CanonicalEntries() {
		if _, ok := present[name]; !ok {
			report.Missing = append(report.Missing, name)
		}
	}

	if _, ok := present[archive.EntryManifest]; !ok {
		return report, nil
	}

	data, err := archive.ReadEntry(path, archive.EntryManifest)
	if err != nil {
		return nil, err
	}

	var manifest release.Manifest
	if err = json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decode %s: %w", archive.EntryManifest, err)
	}

	report.Manifest = &manifest

	report.ManifestDigest, err = release.Digest(data)
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Archive inspected", "path", path, "entries", len(entries))

	return report, nil
}

// Print writes the report as a table.
func (r *ArchiveReport) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(tw, "ENTRY\tSIZE\tSHA256")
	for _, e := range r.Entries {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Name, e.Size, e.SHA256)
	}

	for _, name := range r.Missing {
		_, _ = fmt.Fprintf(tw, "%s\t-\tmissing\n", name)
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	if r.Manifest == nil {
		return nil
	}

	_, err := fmt.Fprintf(w, "\nversion %s (%s), commit %s, built %s\nmanifest digest %s\n",
		r.Manifest.Version, r.Manifest.VersionDate, r.Manifest.GitCommit, r.Manifest.BuildDate, r.ManifestDigest)

	return err
}
