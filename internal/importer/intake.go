package importer

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrNoImportableFiles means an uploaded archive contained no .csv or
// .txt members.
var ErrNoImportableFiles = errors.New("no importable files in archive")

// Intake turns one uploaded file into one or more pending import jobs.
// A ZIP archive is split into a job per member; a bare .csv/.txt file
// becomes a single job. The county name is free text here; it is only
// resolved (and possibly rejected) when the worker runs.
type Intake struct {
	jobs      *JobStore
	uploadDir string
	logger    zerolog.Logger
}

// NewIntake creates an intake writing spooled files to uploadDir.
func NewIntake(jobs *JobStore, uploadDir string, logger zerolog.Logger) (*Intake, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Intake{
		jobs:      jobs,
		uploadDir: uploadDir,
		logger:    logger.With().Str("component", "upload-intake").Logger(),
	}, nil
}

// AcceptsFilename reports whether the upload filename has an accepted
// extension.
func AcceptsFilename(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".zip":
		return true
	}
	return false
}

// HandleUpload spools the uploaded content and creates pending jobs for
// it. The caller starts each returned job exactly once.
func (i *Intake) HandleUpload(ctx context.Context, filename string, r io.Reader, countyName string) ([]*Job, error) {
	if strings.TrimSpace(countyName) == "" {
		return nil, fmt.Errorf("county name is required")
	}
	if !AcceptsFilename(filename) {
		return nil, fmt.Errorf("invalid file type %q: must be .csv, .txt, or .zip", filepath.Base(filename))
	}

	if strings.EqualFold(filepath.Ext(filename), ".zip") {
		return i.handleArchive(ctx, filename, r, countyName)
	}

	spooled, err := i.spool(filepath.Base(filename), r)
	if err != nil {
		return nil, err
	}

	job, err := i.jobs.Create(ctx, spooled, countyName)
	if err != nil {
		os.Remove(filepath.Join(i.uploadDir, spooled))
		return nil, err
	}

	i.logger.Info().
		Int64("job_id", job.ID).
		Str("filename", spooled).
		Str("county", countyName).
		Msg("Import job created")
	return []*Job{job}, nil
}

// handleArchive extracts each importable member of a ZIP upload into
// the spool directory and creates one job per member. The archive file
// itself is removed when extraction is done.
func (i *Intake) handleArchive(ctx context.Context, filename string, r io.Reader, countyName string) ([]*Job, error) {
	archiveName, err := i.spool(filepath.Base(filename), r)
	if err != nil {
		return nil, err
	}
	archivePath := filepath.Join(i.uploadDir, archiveName)
	defer os.Remove(archivePath)

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer zr.Close()

	var jobs []*Job
	for _, member := range zr.File {
		if !importableMember(member.Name) {
			continue
		}

		src, err := member.Open()
		if err != nil {
			return jobs, fmt.Errorf("failed to open archive member %s: %w", member.Name, err)
		}
		spooled, err := i.spool(filepath.Base(member.Name), src)
		src.Close()
		if err != nil {
			return jobs, err
		}

		job, err := i.jobs.Create(ctx, spooled, countyName)
		if err != nil {
			os.Remove(filepath.Join(i.uploadDir, spooled))
			return jobs, err
		}

		i.logger.Info().
			Int64("job_id", job.ID).
			Str("filename", spooled).
			Str("member", member.Name).
			Str("county", countyName).
			Msg("Import job created from archive member")
		jobs = append(jobs, job)
	}

	if len(jobs) == 0 {
		return nil, ErrNoImportableFiles
	}
	return jobs, nil
}

// importableMember filters archive entries: only .csv/.txt files,
// skipping resource-fork junk like __MACOSX entries.
func importableMember(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(name, "__") || strings.HasPrefix(base, "__") || strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	return ext == ".csv" || ext == ".txt"
}

// spool writes content into the upload directory under a unique name
// and returns that name.
func (i *Intake) spool(base string, r io.Reader) (string, error) {
	name := fmt.Sprintf("%s_%s", uuid.New().String()[:8], base)
	path := filepath.Join(i.uploadDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create spool file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close spool file: %w", err)
	}
	return name, nil
}
