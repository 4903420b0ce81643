// Package mux combines the separately-downloaded video and audio streams
// into a single container, using ffmpeg with stream copy (no re-encode).
package mux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"

	bili_archiver "bili-archiver"
)

const DefaultBinary = "ffmpeg"

type FFmpeg struct {
	// Binary overrides the ffmpeg executable path; empty means $PATH lookup
	// of "ffmpeg".
	Binary string
}

// Mux writes videoPath + audioPath into outPath, overwriting any existing
// file. Codecs are copied verbatim, so this is pure remuxing.
func (f *FFmpeg) Mux(ctx context.Context, videoPath string, audioPath string, outPath string) error {
	bin := f.Binary
	if bin == "" {
		bin = DefaultBinary
	}
	cmd := exec.CommandContext(ctx, bin,
		"-y",
		"-loglevel", "error",
		"-i", videoPath,
		"-i", audioPath,
		"-c", "copy",
		outPath,
	)
	stderr := bytes.Buffer{}
	cmd.Stderr = &stderr
	bili_archiver.Logger(ctx).Debug("running ffmpeg", zap.Strings("args", cmd.Args))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, stderr.String())
	}
	return nil
}
