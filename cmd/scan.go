package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/metaforge/internal/types"
)

var scanCmd = &cobra.Command{
	Use:     "scan <directory...>",
	Aliases: []string{"s"},
	Short:   "Discover media files under one or more directories",
	Long: `Scan walks the given directories and lists every file matching one of the
configured media extensions, along with the directory listing each file
would be processed alongside (used by the companion handler for sidecar
discovery).

Examples:
  metaforge scan ./photos
  metaforge scan -f json ./photos ./videos`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

var (
	scanFormat     string
	scanExtensions []string
)

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "output format (table|json|yaml)")
	scanCmd.Flags().StringSliceVarP(&scanExtensions, "ext", "e", defaultMediaExtensions, "media file extensions to include")
}

var defaultMediaExtensions = []string{".jpg", ".jpeg", ".png", ".heic", ".mp4", ".mov", ".cr2", ".nef", ".arw"}

func runScan(cmd *cobra.Command, args []string) error {
	if err := validateOutputFormat(scanFormat); err != nil {
		return err
	}

	wanted := make(map[string]struct{}, len(scanExtensions))
	for _, e := range scanExtensions {
		wanted[normalizeExt(e)] = struct{}{}
	}

	var handles []types.FileHandle
	for _, root := range args {
		found, err := scanDirectory(root, wanted)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to scan %s: %v\n", root, err)
			continue
		}
		handles = append(handles, found...)
	}

	if scanFormat != "table" {
		return writeStructured(scanFormat, handles)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tSIZE\tMODIFIED")
	for _, h := range handles {
		fmt.Fprintf(w, "%s\t%d\t%s\n", h.Path, h.Size, h.ModTime.Format("2006-01-02 15:04:05"))
	}
	w.Flush()
	fmt.Printf("\n%d file(s) found\n", len(handles))
	return nil
}

func normalizeExt(e string) string {
	if e == "" || e[0] != '.' {
		return "." + e
	}
	return e
}

// scanDirectory walks root and returns a FileHandle per matching file, each
// carrying the sibling file names from its own directory so the companion
// handler can find sidecars without a second walk.
func scanDirectory(root string, wanted map[string]struct{}) ([]types.FileHandle, error) {
	dirListings := make(map[string][]string)
	var matches []string

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		dir := filepath.Dir(path)
		dirListings[dir] = append(dirListings[dir], d.Name())

		if _, ok := wanted[normalizeExt(filepath.Ext(path))]; ok {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	handles := make([]types.FileHandle, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		handles = append(handles, types.FileHandle{
			Path:       types.NewPath(m),
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			DirListing: dirListings[filepath.Dir(m)],
		})
	}
	return handles, nil
}
