// Package library places finished artifacts into the media server's
// directory tree: the muxed video with its .nfo into the library, and cast
// metadata into the Emby people tree.
package library

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"bili-archiver/util"
)

// SubdirName is the library subdirectory all archived videos live under.
const SubdirName = "bilibili"

// RelocateItem moves a completed item directory (video + nfo + poster) into
// the library as {mediaRoot}/bilibili/{folderName}. Re-processing the same
// video replaces the previous copy. Returns the final item directory.
func RelocateItem(srcDir string, mediaRoot string, folderName string) (string, error) {
	dest := filepath.Join(mediaRoot, SubdirName, folderName)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("relocating item: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		if err := os.RemoveAll(dest); err != nil {
			return "", fmt.Errorf("relocating item: %w", err)
		}
	}
	if err := move(srcDir, dest); err != nil {
		return "", fmt.Errorf("relocating item: %w", err)
	}
	return dest, nil
}

// RelocateCast moves each per-person directory under srcDir into the people
// tree, sharded by the first character of the person's name, i.e.
// {personsRoot}/{shard}/{name}. A person directory that already exists is
// left alone, so metadata curated on the server side is never clobbered.
// The staged source tree is removed regardless of partial failures.
func RelocateCast(srcDir string, personsRoot string) error {
	defer os.RemoveAll(srcDir)
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return fmt.Errorf("relocating cast: %w", err)
	}
	var errs *multierror.Error
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		dest := filepath.Join(personsRoot, util.FirstCharacter(name), name)
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("relocating %v: %w", name, err))
			continue
		}
		if err := move(filepath.Join(srcDir, name), dest); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("relocating %v: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}

// move renames src to dst, falling back to copy-and-delete when rename fails
// (e.g. the library is on a different filesystem than the staging area).
func move(src string, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyTree(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyTree(src string, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode())
	}
	if err := os.MkdirAll(dst, info.Mode()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src string, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
