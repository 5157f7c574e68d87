// Package server exposes the job API over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/avelichko/defect-classifier/constants"
	"github.com/avelichko/defect-classifier/internal/entity"
	"github.com/avelichko/defect-classifier/internal/repository"
)

// Queue is the job dispatch surface the API needs; *async.JobQueue satisfies
// it.
type Queue interface {
	Enqueue(ctx context.Context, id uuid.UUID) error
	Cancel(id uuid.UUID) bool
}

type Config struct {
	UploadsDir    string
	MaxUploadSize int64
}

type Server struct {
	store  *repository.JobStore
	queue  Queue
	logger *slog.Logger
	cfg    Config
}

func New(store *repository.JobStore, queue Queue, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, queue: queue, logger: logger, cfg: cfg}
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.MaxMultipartMemory = s.cfg.MaxUploadSize

	router.GET("/health", s.Health)
	router.POST("/api/jobs", s.CreateJob)
	router.GET("/api/jobs/:id", s.GetJob)
	router.GET("/api/jobs/:id/download", s.Download)
	router.POST("/api/jobs/:id/cancel", s.CancelJob)

	return router
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateJob accepts a multipart upload under the "file" field, stores it in
// the uploads directory and queues a new job.
func (s *Server) CreateJob(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if file.Size > s.cfg.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if ext != ".xlsx" && ext != ".xlsm" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .xlsx uploads are supported"})
		return
	}

	dst := filepath.Join(s.cfg.UploadsDir, fmt.Sprintf("%s%s", uuid.NewString(), ext))
	if err := c.SaveUploadedFile(file, dst); err != nil {
		s.logger.Error("api.upload_save_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot store upload"})
		return
	}

	job, err := s.store.Create(c.Request.Context(), dst)
	if err != nil {
		s.logger.Error("api.job_create_failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot create job"})
		return
	}
	if err := s.queue.Enqueue(c.Request.Context(), job.ID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
		return
	}

	s.logger.Info("api.job_created", "job_id", job.ID, "filename", file.Filename)
	c.JSON(http.StatusAccepted, jobResponse(job))
}

func (s *Server) GetJob(c *gin.Context) {
	job, ok := s.loadJob(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, jobResponse(job))
}

// Download serves the processed workbook once the job has completed.
func (s *Server) Download(c *gin.Context) {
	job, ok := s.loadJob(c)
	if !ok {
		return
	}
	if job.OutputPath == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "job has no result yet", "status": job.Status})
		return
	}
	c.FileAttachment(job.OutputPath, filepath.Base(job.OutputPath))
}

// CancelJob stops a running job. Terminal jobs cannot be cancelled.
func (s *Server) CancelJob(c *gin.Context) {
	job, ok := s.loadJob(c)
	if !ok {
		return
	}
	if job.Status.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "job already finished", "status": job.Status})
		return
	}
	if !s.queue.Cancel(job.ID) {
		// Not on a worker yet: mark it failed directly so the queue worker
		// skips the terminal record when it eventually dequeues. The store
		// refuses the update if the job finished in the meantime.
		err := s.store.Fail(c.Request.Context(), job.ID, "job cancelled")
		if errors.Is(err, repository.ErrAlreadyTerminal) {
			c.JSON(http.StatusConflict, gin.H{"error": "job already finished"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot cancel job"})
			return
		}
	}
	s.logger.Info("api.job_cancelled", "job_id", job.ID)
	c.JSON(http.StatusOK, gin.H{"id": job.ID, "cancelled": true})
}

func (s *Server) loadJob(c *gin.Context) (*entity.Job, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return nil, false
	}
	job, err := s.store.Get(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return nil, false
	}
	if err != nil {
		s.logger.Error("api.job_load_failed", "job_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot load job"})
		return nil, false
	}
	return job, true
}

func jobResponse(job *entity.Job) gin.H {
	resp := gin.H{
		"id":         job.ID,
		"status":     job.Status,
		"progress":   job.Progress,
		"created_at": job.CreatedAt,
		"updated_at": job.UpdatedAt,
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	if job.Status == constants.JobStatusCompleted && job.OutputPath != "" {
		resp["download_url"] = fmt.Sprintf("/api/jobs/%s/download", job.ID)
	}
	return resp
}
