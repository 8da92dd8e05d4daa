package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"go-mangadex-upload/internal/helpers"

	log "github.com/sirupsen/logrus"
)

// MoveToUploaded moves a committed archive into destDir. An existing file of
// the same name gets a {vN} suffix, N counting up from 2 until free.
func MoveToUploaded(src, destDir string) (string, error) {
	if err := helpers.CheckAndMakeDir(destDir); err != nil {
		return "", fmt.Errorf("uploaded folder unusable: %w", err)
	}

	dest, err := freeDestination(filepath.Base(src), destDir)
	if err != nil {
		return "", err
	}

	if err := os.Rename(src, dest); err != nil {
		if !errors.Is(err, syscall.EXDEV) {
			return "", fmt.Errorf("error moving %s to %s: %w", src, dest, err)
		}
		// Different filesystems, copy then remove.
		if err := copyFile(src, dest); err != nil {
			return "", err
		}
		if err := os.Remove(src); err != nil {
			return "", fmt.Errorf("copied %s but could not remove it: %w", src, err)
		}
	}
	log.Infof("Moved %s to %s", src, dest)
	return dest, nil
}

func freeDestination(name, destDir string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(destDir, name)
	for version := 2; ; version++ {
		_, err := os.Stat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("error checking %s: %w", candidate, err)
		}
		candidate = filepath.Join(destDir, fmt.Sprintf("%s{v%d}%s", stem, version, ext))
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("error copying %s to %s: %w", src, dest, err)
	}
	return out.Close()
}
