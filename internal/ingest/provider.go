package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"golang.org/x/sys/unix"

	"fission/internal/config"
	"fission/internal/media/ffprobe"
	"fission/internal/services"
)

var (
	// ErrUnsupportedFormat marks a source that can never be processed.
	ErrUnsupportedFormat = services.Code(services.ErrValidation, "UnsupportedFormat")
	// ErrFetchFailed marks a source that could not be read this time.
	ErrFetchFailed = services.Code(services.ErrTransient, "FetchFailed")
	// ErrInsufficientSpace marks a scratch volume too full to process the source.
	ErrInsufficientSpace = services.Code(services.ErrConfiguration, "InsufficientSpace")
)

// Media is the validated handle to a project's source video.
type Media struct {
	Handle          string
	DurationSeconds float64
	SizeBytes       int64
}

// Provider validates a source reference and returns its media handle.
type Provider interface {
	FetchAndValidate(ctx context.Context, sourceRef string) (Media, error)
}

var (
	probe  = ffprobe.Inspect
	statfs = realStatfs
)

// SetProbeForTests overrides the ffprobe runner during tests.
func SetProbeForTests(fn func(context.Context, string, string) (ffprobe.Result, error)) func() {
	previous := probe
	probe = fn
	return func() {
		probe = previous
	}
}

// SetStatfsForTests overrides the free-space lookup during tests.
func SetStatfsForTests(fn func(string) (uint64, error)) func() {
	previous := statfs
	statfs = fn
	return func() {
		statfs = previous
	}
}

// ProbeProvider validates local files with ffprobe.
type ProbeProvider struct {
	binary       string
	scratchDir   string
	allowed      []string
	maxSizeBytes int64
	minFreeBytes uint64
}

// NewProbeProvider builds the default provider from configuration.
func NewProbeProvider(cfg *config.Config) *ProbeProvider {
	return &ProbeProvider{
		binary:       cfg.FFprobeBinary(),
		scratchDir:   cfg.Paths.TempDir,
		allowed:      cfg.Ingest.AllowedExtensions,
		maxSizeBytes: int64(cfg.Ingest.MaxFileSizeMB) * 1024 * 1024,
		minFreeBytes: uint64(max(cfg.Ingest.MinFreeSpaceMB, 0)) * 1024 * 1024,
	}
}

// FetchAndValidate checks sourceRef and returns its media handle.
func (p *ProbeProvider) FetchAndValidate(ctx context.Context, sourceRef string) (Media, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return Media{}, services.Wrap(ErrUnsupportedFormat, "ingest", "validate source", "source reference is empty", nil)
	}
	path, err := config.ExpandPath(sourceRef)
	if err != nil {
		return Media{}, services.Wrap(ErrUnsupportedFormat, "ingest", "resolve source", sourceRef, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(p.allowed, ext) {
		return Media{}, services.Wrap(ErrUnsupportedFormat, "ingest", "validate extension",
			fmt.Sprintf("%q is not one of %s", ext, strings.Join(p.allowed, " ")), nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Media{}, services.Wrap(ErrFetchFailed, "ingest", "stat source", "source file not found", err)
		}
		return Media{}, services.Wrap(ErrFetchFailed, "ingest", "stat source", path, err)
	}
	if info.IsDir() {
		return Media{}, services.Wrap(ErrUnsupportedFormat, "ingest", "stat source", "source is a directory", nil)
	}
	if p.maxSizeBytes > 0 && info.Size() > p.maxSizeBytes {
		return Media{}, services.Wrap(ErrUnsupportedFormat, "ingest", "validate size",
			fmt.Sprintf("%d MB exceeds limit of %d MB", info.Size()/(1024*1024), p.maxSizeBytes/(1024*1024)), nil)
	}
	if err := p.checkFreeSpace(info.Size()); err != nil {
		return Media{}, err
	}

	result, err := probe(ctx, p.binary, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Media{}, ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return Media{}, services.Wrap(services.ErrConfiguration, "ingest", "probe", "ffprobe not found on PATH", err)
		}
		return Media{}, services.Wrap(ErrUnsupportedFormat, "ingest", "probe", "file is not readable media", err)
	}
	if _, ok := result.PrimaryVideo(); !ok {
		return Media{}, services.Wrap(ErrUnsupportedFormat, "ingest", "probe", "no video stream", nil)
	}
	if !result.HasAudio() {
		return Media{}, services.Wrap(ErrUnsupportedFormat, "ingest", "probe", "no audio stream to transcribe", nil)
	}
	duration := result.DurationSeconds()
	if duration <= 0 {
		return Media{}, services.Wrap(ErrUnsupportedFormat, "ingest", "probe", "duration unavailable", nil)
	}

	size := result.SizeBytes()
	if size <= 0 {
		size = info.Size()
	}
	return Media{Handle: path, DurationSeconds: duration, SizeBytes: size}, nil
}

// checkFreeSpace requires room for the clips cut from a source of size bytes
// on top of the configured floor.
func (p *ProbeProvider) checkFreeSpace(size int64) error {
	if p.minFreeBytes == 0 || strings.TrimSpace(p.scratchDir) == "" {
		return nil
	}
	if err := os.MkdirAll(p.scratchDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "ingest", "check free space", p.scratchDir, err)
	}
	free, err := statfs(p.scratchDir)
	if err != nil {
		return services.Wrap(ErrFetchFailed, "ingest", "check free space", p.scratchDir, err)
	}
	need := p.minFreeBytes + uint64(max(size, 0))
	if free < need {
		return services.Wrap(ErrInsufficientSpace, "ingest", "check free space",
			fmt.Sprintf("%d MB free in %s, need %d MB", free/(1024*1024), p.scratchDir, need/(1024*1024)), nil)
	}
	return nil
}

func realStatfs(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
