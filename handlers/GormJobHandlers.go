package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"backend/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ExportJobManager runs workbook exports in the background and tracks them
// in the export_jobs table through GORM. Each job writes its file under the
// export directory with a uuid name so concurrent exports never collide.
type ExportJobManager struct {
	db  *sql.DB
	gdb *gorm.DB

	jobMutex     sync.RWMutex
	jobCancelMap map[uint]context.CancelFunc
	jobWG        sync.WaitGroup
}

func NewExportJobManager(db *sql.DB, gdb *gorm.DB) *ExportJobManager {
	return &ExportJobManager{
		db:           db,
		gdb:          gdb,
		jobCancelMap: make(map[uint]context.CancelFunc),
	}
}

func exportDir() string {
	if dir := os.Getenv("EXPORT_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "roofline_exports")
}

func (m *ExportJobManager) registerJob(jobID uint, cancel context.CancelFunc) {
	m.jobMutex.Lock()
	defer m.jobMutex.Unlock()
	m.jobCancelMap[jobID] = cancel
}

func (m *ExportJobManager) unregisterJob(jobID uint) {
	m.jobMutex.Lock()
	defer m.jobMutex.Unlock()
	delete(m.jobCancelMap, jobID)
}

func (m *ExportJobManager) markJob(jobID uint, status string, filePath *string, errMsg *string) {
	updates := map[string]interface{}{"status": status}
	if status == "completed" || status == "failed" || status == "cancelled" {
		now := time.Now()
		updates["completed_at"] = &now
	}
	if filePath != nil {
		updates["file_path"] = filePath
	}
	if errMsg != nil {
		updates["error"] = errMsg
	}
	if err := m.gdb.Model(&models.ExportJobGorm{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		log.Printf("export job %d: status update failed: %v", jobID, err)
	}
}

func (m *ExportJobManager) runQuotesExport(ctx context.Context, jobID uint, status string) {
	defer m.jobWG.Done()
	defer m.unregisterJob(jobID)

	m.markJob(jobID, "running", nil, nil)

	quotes, err := fetchQuoteExportRows(m.db, status)
	if err != nil {
		msg := err.Error()
		m.markJob(jobID, "failed", nil, &msg)
		return
	}

	select {
	case <-ctx.Done():
		m.markJob(jobID, "cancelled", nil, nil)
		return
	default:
	}

	f, err := buildQuotesWorkbook(quotes)
	if err != nil {
		msg := err.Error()
		m.markJob(jobID, "failed", nil, &msg)
		return
	}
	defer f.Close()

	if err := os.MkdirAll(exportDir(), 0o755); err != nil {
		msg := err.Error()
		m.markJob(jobID, "failed", nil, &msg)
		return
	}
	path := filepath.Join(exportDir(), fmt.Sprintf("quotes_%s.xlsx", uuid.NewString()))
	if err := f.SaveAs(path); err != nil {
		msg := err.Error()
		m.markJob(jobID, "failed", nil, &msg)
		return
	}

	m.markJob(jobID, "completed", &path, nil)
	log.Printf("export job %d: wrote %d quotes to %s", jobID, len(quotes), path)
}

// StartQuotesExportHandler queues a background quotes export
// @Summary Start quotes export job
// @Description Queue a background job that builds the quotes workbook and
// records its progress in the export_jobs table
// @Tags Export
// @Accept json
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 202 {object} models.ExportJobGorm
// @Failure 500 {object} models.ErrorResponse
// @Router /api/export/jobs/quotes [post]
func (m *ExportJobManager) StartQuotesExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := CurrentUser(c)
		job := models.ExportJobGorm{
			JobType:     "quotes_xlsx",
			Status:      "pending",
			RequestedBy: actor.ID,
			CreatedAt:   time.Now(),
		}
		if err := m.gdb.Create(&job).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create export job", "details": err.Error()})
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		m.registerJob(job.ID, cancel)
		m.jobWG.Add(1)
		go m.runQuotesExport(ctx, job.ID, c.Query("status"))

		c.JSON(http.StatusAccepted, job)
	}
}

// GetExportJobHandler returns one export job
// @Summary Get export job
// @Tags Export
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Job ID"
// @Success 200 {object} models.ExportJobGorm
// @Failure 404 {object} models.ErrorResponse
// @Router /api/export/jobs/{id} [get]
func (m *ExportJobManager) GetExportJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
			return
		}

		var job models.ExportJobGorm
		if err := m.gdb.First(&job, id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "Export job not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch export job", "details": err.Error()})
			return
		}

		m.jobMutex.RLock()
		_, running := m.jobCancelMap[job.ID]
		m.jobMutex.RUnlock()

		c.JSON(http.StatusOK, gin.H{"job": job, "is_running_in_memory": running})
	}
}

// ListExportJobsHandler lists recent export jobs
// @Summary List export jobs
// @Tags Export
// @Produce json
// @Param Authorization header string true "Session token"
// @Success 200 {array} models.ExportJobGorm
// @Failure 500 {object} models.ErrorResponse
// @Router /api/export/jobs [get]
func (m *ExportJobManager) ListExportJobsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var jobs []models.ExportJobGorm
		if err := m.gdb.Order("created_at DESC").Limit(50).Find(&jobs).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch export jobs", "details": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobs": jobs})
	}
}

// CancelExportJobHandler cancels a running export
// @Summary Cancel export job
// @Tags Export
// @Produce json
// @Param Authorization header string true "Session token"
// @Param id path int true "Job ID"
// @Success 200 {object} models.MessageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/export/jobs/{id}/cancel [post]
func (m *ExportJobManager) CancelExportJobHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
			return
		}

		m.jobMutex.Lock()
		cancel, running := m.jobCancelMap[uint(id)]
		if running {
			cancel()
			delete(m.jobCancelMap, uint(id))
		}
		m.jobMutex.Unlock()

		if !running {
			c.JSON(http.StatusNotFound, gin.H{"error": "No running export job with that ID"})
			return
		}

		log.Printf("export job %d cancelled by user", id)
		c.JSON(http.StatusOK, gin.H{"message": "Export job cancelled"})
	}
}

// DownloadExportHandler streams a completed export file
// @Summary Download export file
// @Tags Export
// @Param Authorization header string true "Session token"
// @Param id path int true "Job ID"
// @Success 200 {file} file "Excel file"
// @Failure 409 {object} models.ErrorResponse
// @Router /api/export/jobs/{id}/download [get]
func (m *ExportJobManager) DownloadExportHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID"})
			return
		}

		var job models.ExportJobGorm
		if err := m.gdb.First(&job, id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "Export job not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch export job", "details": err.Error()})
			return
		}
		if job.Status != "completed" || job.FilePath == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Export is not complete", "status": job.Status})
			return
		}

		c.FileAttachment(*job.FilePath, filepath.Base(*job.FilePath))
	}
}

// Shutdown waits for in-flight export jobs, up to the timeout.
func (m *ExportJobManager) Shutdown(timeout time.Duration) error {
	m.jobMutex.Lock()
	for jobID, cancel := range m.jobCancelMap {
		log.Printf("export job %d: cancelling for shutdown", jobID)
		cancel()
	}
	m.jobMutex.Unlock()

	done := make(chan struct{})
	go func() {
		m.jobWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("export jobs did not finish within %v", timeout)
	}
}
