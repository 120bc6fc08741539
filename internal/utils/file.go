package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/maruel/natural"

	"github.com/menta2k/labeller/pkg/types"
)

// DefaultImageFormats are the raster extensions offered for labelling
var DefaultImageFormats = []string{"jpg", "jpeg", "png", "gif", "bmp"}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists and is not a directory", dir)
	}
	return nil
}

// GetFileExtension returns the file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// SplitName splits a file name into its base name and extension, with the
// extension keeping its dot and original case: "Card.PNG" -> ("Card", ".PNG").
func SplitName(filename string) (base, ext string) {
	name := filepath.Base(filename)
	ext = filepath.Ext(name)
	return strings.TrimSuffix(name, ext), ext
}

// IsImageFile checks if a file has one of the given extensions, case-insensitively.
// An empty format list means DefaultImageFormats.
func IsImageFile(filename string, formats []string) bool {
	if len(formats) == 0 {
		formats = DefaultImageFormats
	}
	ext := GetFileExtension(filename)
	if ext == "" {
		return false
	}

	for _, f := range formats {
		if strings.EqualFold(ext, strings.TrimPrefix(f, ".")) {
			return true
		}
	}
	return false
}

// ListImages returns the images directly inside dir, in directory listing order.
// Subdirectories are not searched. With naturalOrder, names are sorted so that
// "img2" comes before "img10".
func ListImages(dir string, formats []string, naturalOrder bool) ([]types.ImageDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var images []types.ImageDescriptor
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name(), formats) {
			continue
		}
		if !entry.Type().IsRegular() && entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		images = append(images, types.ImageDescriptor{
			Path: filepath.Join(dir, entry.Name()),
			Name: entry.Name(),
		})
	}

	if naturalOrder {
		sort.SliceStable(images, func(i, j int) bool { return natural.Less(images[i].Name, images[j].Name) })
	}

	return images, nil
}

// FileExists checks if a file exists and is not a directory
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && info.IsDir()
}

// ReplaceExtension swaps the extension of filename for ext (without the dot)
func ReplaceExtension(filename, ext string) string {
	base, _ := SplitName(filename)
	return base + "." + strings.TrimPrefix(ext, ".")
}
