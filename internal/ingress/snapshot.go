package ingress

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/stackia/rtp2httpd/internal/logger"
	"github.com/stackia/rtp2httpd/internal/rerror"
)

// SnapshotFrames is the small number of MPEG-TS frames spec §4.6
// accumulates from the first IDR before invoking the decoder ("buffering
// from the first IDR frame until a small number of frames is
// accumulated").
const SnapshotFrames = 32

// FrameClassifier reports whether a TS payload chunk starts a new IDR
// (spec §4.6). The gateway never parses the video bitstream itself (spec
// §1 Non-goals); callers supply a classifier appropriate to the stream's
// codec, typically scanning for an H.264/H.265 IDR NAL start code at the
// PES layer.
type FrameClassifier func(payload []byte) (isIDR bool)

// Accumulator buffers payload chunks starting at the first IDR frame
// until SnapshotFrames frames have been seen.
type Accumulator struct {
	classify  FrameClassifier
	buf       bytes.Buffer
	frames    int
	started   bool
	Completed bool
}

func NewAccumulator(classify FrameClassifier) *Accumulator {
	return &Accumulator{classify: classify}
}

// Feed appends one payload chunk, starting accumulation at the first IDR
// and marking Completed once SnapshotFrames have been buffered.
func (a *Accumulator) Feed(payload []byte) {
	if a.Completed {
		return
	}
	if !a.started {
		if !a.classify(payload) {
			return
		}
		a.started = true
	}
	a.buf.Write(payload)
	a.frames++
	if a.frames >= SnapshotFrames {
		a.Completed = true
	}
}

func (a *Accumulator) Bytes() []byte { return a.buf.Bytes() }

// DecodeJPEG spawns the configured decoder (spec §6.3: ffmpeg-path,
// ffmpeg-args) with frames piped to its stdin, returning the JPEG it
// writes to stdout. argsTemplate is split on whitespace; a literal "-"
// token, if present, is left as-is (ffmpeg's stdin placeholder).
func DecodeJPEG(ctx context.Context, ffmpegPath, argsTemplate string, frames []byte, log *logger.Entry) ([]byte, error) {
	args := strings.Fields(argsTemplate)
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(frames)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if log != nil {
			log.Warnf("ingress: snapshot decoder failed: %v (%s)", err, stderr.String())
		}
		return nil, rerror.Wrap(rerror.CodeNotFound, fmt.Sprintf("ingress: %s exited with error", ffmpegPath), err)
	}
	if stdout.Len() == 0 {
		return nil, rerror.New(rerror.CodeNotFound, "ingress: decoder produced no output")
	}
	return stdout.Bytes(), nil
}

// DecodeTimeout bounds the external decoder invocation so a snapshot
// request never blocks the client past spec §8 scenario 6's under-1s (with
// FCC) / under-1-GOP (without) expectation by more than a safety margin.
const DecodeTimeout = 3 * time.Second
