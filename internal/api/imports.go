package api

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/petitionqc/voterd/internal/county"
	"github.com/petitionqc/voterd/internal/importer"
	"github.com/petitionqc/voterd/internal/voterdb"
)

// ImportHandler exposes the import pipeline and its admin surface.
type ImportHandler struct {
	jobs   *importer.JobStore
	orch   *importer.Orchestrator
	intake *importer.Intake
	voters *voterdb.Store
	logger zerolog.Logger

	totalUploads atomic.Int64
	totalErrors  atomic.Int64
}

// NewImportHandler creates a new ImportHandler.
func NewImportHandler(jobs *importer.JobStore, orch *importer.Orchestrator, intake *importer.Intake, voters *voterdb.Store, logger zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		jobs:   jobs,
		orch:   orch,
		intake: intake,
		voters: voters,
		logger: logger.With().Str("component", "import-handler").Logger(),
	}
}

// RegisterRoutes registers import API routes.
func (h *ImportHandler) RegisterRoutes(app *fiber.App) {
	app.Post("/api/v1/imports/upload", h.handleUpload)
	app.Get("/api/v1/imports", h.handleList)
	app.Get("/api/v1/imports/:id/status", h.handleStatus)
	app.Post("/api/v1/imports/:id/cancel", h.handleCancel)
	app.Post("/api/v1/imports/:id/rollback", h.handleRollback)
	app.Post("/api/v1/imports/:id/cleanup", h.handleCleanup)
	app.Get("/api/v1/imports/stats", h.handleStats)
	app.Get("/api/v1/counties", h.handleCounties)
	app.Get("/api/v1/counties/loaded", h.handleLoadedCounties)
	app.Delete("/api/v1/voters", h.handleDeleteVoters)

	h.logger.Info().Msg("Import routes registered")
}

// JobStatus is the read-only polling projection of an import job.
type JobStatus struct {
	ID            int64      `json:"id"`
	Filename      string     `json:"filename"`
	CountyName    string     `json:"county_name"`
	Status        string     `json:"status"`
	ProcessedRows int64      `json:"processed_rows"`
	TotalRows     int64      `json:"total_rows"`
	Percent       float64    `json:"percent"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CanRollback   bool       `json:"can_rollback"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func (h *ImportHandler) jobStatus(j *importer.Job) JobStatus {
	return JobStatus{
		ID:            j.ID,
		Filename:      j.Filename,
		CountyName:    j.CountyName,
		Status:        string(j.Status),
		ProcessedRows: j.ProcessedRows,
		TotalRows:     j.TotalRows,
		Percent:       j.PercentComplete(),
		ErrorMessage:  j.ErrorMessage,
		CanRollback:   j.CanRollback(h.orch.RollbackWindow(), time.Now()),
		CreatedAt:     j.CreatedAt,
		CompletedAt:   j.CompletedAt,
	}
}

// handleUpload accepts one or more voter files (or ZIP archives of
// them) and starts one import job per file.
func (h *ImportHandler) handleUpload(c *fiber.Ctx) error {
	h.totalUploads.Add(1)

	countyName := c.FormValue("county_name")
	if countyName == "" {
		h.totalErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "county_name form field is required",
		})
	}

	form, err := c.MultipartForm()
	if err != nil {
		h.totalErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "no files uploaded: use multipart/form-data with field name 'file'",
		})
	}
	files := form.File["file"]
	if len(files) == 0 {
		h.totalErrors.Add(1)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "no files uploaded: use multipart/form-data with field name 'file'",
		})
	}

	var created []JobStatus
	for _, fh := range files {
		src, err := fh.Open()
		if err != nil {
			h.totalErrors.Add(1)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to open uploaded file: " + err.Error(),
			})
		}

		jobs, err := h.intake.HandleUpload(c.Context(), fh.Filename, src, countyName)
		src.Close()
		if err != nil {
			h.totalErrors.Add(1)
			h.logger.Error().Err(err).Str("filename", fh.Filename).Msg("Upload rejected")
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		// Exactly one start per created job.
		for _, job := range jobs {
			h.orch.Start(job.ID)
			created = append(created, h.jobStatus(job))
		}
	}

	h.logger.Info().
		Int("jobs", len(created)).
		Str("county", countyName).
		Msg("Upload accepted")

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":  "ok",
		"imports": created,
	})
}

// handleList returns all jobs, split into active and finished.
func (h *ImportHandler) handleList(c *fiber.Ctx) error {
	jobs, err := h.jobs.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	active := make([]JobStatus, 0)
	finished := make([]JobStatus, 0)
	for _, j := range jobs {
		if j.IsActive() {
			active = append(active, h.jobStatus(j))
		} else {
			finished = append(finished, h.jobStatus(j))
		}
	}

	return c.JSON(fiber.Map{
		"active":   active,
		"finished": finished,
	})
}

// handleStatus returns the polling projection for one job.
func (h *ImportHandler) handleStatus(c *fiber.Ctx) error {
	job, err := h.getJob(c)
	if err != nil {
		return h.jobError(c, err)
	}
	return c.JSON(h.jobStatus(job))
}

// handleCancel requests cancellation of a running import. When no live
// worker owns the job (the process died mid-import), it falls back to
// force-cancel.
func (h *ImportHandler) handleCancel(c *fiber.Ctx) error {
	job, err := h.getJob(c)
	if err != nil {
		return h.jobError(c, err)
	}

	if !job.IsActive() {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "import is not running",
		})
	}

	if h.orch.RequestCancel(c.Context(), job.ID) {
		return c.JSON(fiber.Map{"status": "cancellation_requested"})
	}

	if err := h.orch.ForceCancel(c.Context(), job.ID); err != nil {
		return h.jobError(c, err)
	}
	return c.JSON(fiber.Map{"status": "force_cancelled"})
}

// handleRollback undoes a completed import.
func (h *ImportHandler) handleRollback(c *fiber.Ctx) error {
	job, err := h.getJob(c)
	if err != nil {
		return h.jobError(c, err)
	}

	if err := h.orch.Rollback(c.Context(), job.ID); err != nil {
		if errors.Is(err, importer.ErrRollbackIneligible) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return h.jobError(c, err)
	}
	return c.JSON(fiber.Map{"status": "rolled_back"})
}

// handleCleanup drops a job's retained snapshot.
func (h *ImportHandler) handleCleanup(c *fiber.Ctx) error {
	job, err := h.getJob(c)
	if err != nil {
		return h.jobError(c, err)
	}

	if err := h.orch.CleanupSnapshot(c.Context(), job.ID); err != nil {
		return h.jobError(c, err)
	}
	return c.JSON(fiber.Map{"status": "cleaned_up"})
}

// handleCounties lists all known county names.
func (h *ImportHandler) handleCounties(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"counties": county.Names(),
	})
}

// handleLoadedCounties lists counties with voters loaded, with counts.
func (h *ImportHandler) handleLoadedCounties(c *fiber.Ctx) error {
	loaded, err := h.voters.LoadedCounties(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if loaded == nil {
		loaded = []voterdb.CountyCount{}
	}
	return c.JSON(fiber.Map{
		"counties": loaded,
	})
}

// handleDeleteVoters deletes one county's voters (county_name query
// param) or every voter (no param). Both are irreversible and require
// confirm=true.
func (h *ImportHandler) handleDeleteVoters(c *fiber.Ctx) error {
	if c.Query("confirm") != "true" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "this operation is irreversible; pass confirm=true to proceed",
		})
	}

	countyName := c.Query("county_name")
	var (
		deleted int64
		err     error
	)
	if countyName != "" {
		deleted, err = h.orch.DeleteCounty(c.Context(), countyName)
		if errors.Is(err, importer.ErrUnknownCounty) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	} else {
		deleted, err = h.orch.DeleteAll(c.Context())
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":  "ok",
		"deleted": deleted,
	})
}

func (h *ImportHandler) getJob(c *fiber.Ctx) (*importer.Job, error) {
	id, err := c.ParamsInt("id")
	if err != nil {
		return nil, importer.ErrJobNotFound
	}
	return h.jobs.Get(c.Context(), int64(id))
}

func (h *ImportHandler) jobError(c *fiber.Ctx, err error) error {
	if errors.Is(err, importer.ErrJobNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "import not found",
		})
	}
	h.totalErrors.Add(1)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// handleStats returns handler counters.
func (h *ImportHandler) handleStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"total_uploads": h.totalUploads.Load(),
		"total_errors":  h.totalErrors.Load(),
	})
}
