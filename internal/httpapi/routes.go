package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"transcription-studio/internal/bootstrap"
	"transcription-studio/internal/captions"
	"transcription-studio/internal/config"
	"transcription-studio/internal/domain"
	"transcription-studio/internal/orchestrator"
	"transcription-studio/internal/queue"
	"transcription-studio/internal/records"
	"transcription-studio/internal/resolver"
)

// API holds the handlers over the shared services.
type API struct {
	services *bootstrap.Services
}

// NewAPI creates the handler set.
func NewAPI(services *bootstrap.Services) *API {
	return &API{services: services}
}

func registerRoutes(r *gin.Engine, api *API) {
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/health", api.handleHealth)
		apiGroup.GET("/models", api.handleListModels)

		apiGroup.GET("/settings", api.handleGetSettings)
		apiGroup.PUT("/settings", api.handleSaveSettings)

		apiGroup.GET("/diagnostics", api.handleGetDiagnostics)
		apiGroup.POST("/diagnostics/refresh", api.handleRefreshDiagnostics)
		apiGroup.POST("/diagnostics/:id/fix", api.handleFixDiagnostic)

		apiGroup.POST("/generate", api.handleGenerate)
		apiGroup.POST("/retry/:model", api.handleRetry)

		apiGroup.GET("/session", api.handleCurrentSession)
		apiGroup.POST("/session/select/:model", api.handleSelect)
		apiGroup.GET("/sessions/:key/jobs", api.handleResolveSession)

		apiGroup.GET("/recovery", api.handlePendingRecovery)
		apiGroup.POST("/recovery/restore", api.handleRestore)
		apiGroup.DELETE("/recovery", api.handleDiscardRecovery)

		apiGroup.GET("/queue", api.handleQueueState)
		apiGroup.POST("/queue", api.handleEnqueue)
		apiGroup.POST("/queue/next", api.handleProcessNext)
		apiGroup.POST("/queue/skip", api.handleSkip)
		apiGroup.DELETE("/queue", api.handleResetQueue)

		apiGroup.GET("/jobs/:id/export", api.handleExport)
		apiGroup.POST("/records/archive", api.handleArchive)

		apiGroup.GET("/events", api.handleEvents)
		apiGroup.GET("/events/ws", api.handleEventStream)
	}
}

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"available": a.services.Backends.Models(),
		"selected":  a.services.Settings().Models,
	})
}

func (a *API) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, a.services.Settings())
}

func (a *API) handleSaveSettings(c *gin.Context) {
	var payload domain.Settings
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	saved, err := a.services.SaveSettings(payload)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

func (a *API) handleGetDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, a.services.Diagnostics())
}

func (a *API) handleRefreshDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, a.services.RefreshDiagnostics())
}

func (a *API) handleFixDiagnostic(c *gin.Context) {
	report, err := a.services.Fix(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a *API) handleGenerate(c *gin.Context) {
	audio, ok := readAudio(c)
	if !ok {
		return
	}

	result, err := a.services.Generate(c.Request.Context(), audio, parseModels(c))
	if errors.Is(err, orchestrator.ErrAllFailed) {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": result})
		return
	}
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *API) handleRetry(c *gin.Context) {
	audio, ok := readAudio(c)
	if !ok {
		return
	}

	job, err := a.services.Retry(c.Request.Context(), audio, domain.Model(c.Param("model")))
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (a *API) handleCurrentSession(c *gin.Context) {
	current, ok := a.services.Orchestrator.Current()
	if !ok {
		respondMessage(c, http.StatusNotFound, "no current session")
		return
	}
	selection, _ := a.services.Orchestrator.Selection()
	c.JSON(http.StatusOK, gin.H{
		"session":   current,
		"running":   a.services.Orchestrator.Running(),
		"selection": selection.ID,
	})
}

func (a *API) handleSelect(c *gin.Context) {
	job, err := a.services.Orchestrator.Select(domain.Model(c.Param("model")))
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (a *API) handleResolveSession(c *gin.Context) {
	res, err := a.services.ResolveSession(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) handlePendingRecovery(c *gin.Context) {
	snapshot, ok := a.services.PendingRecovery(c.Request.Context())
	if !ok {
		respondMessage(c, http.StatusNotFound, "no pending session")
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (a *API) handleRestore(c *gin.Context) {
	restored, incomplete, err := a.services.RecoverSession(c.Request.Context())
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": restored, "incomplete": incomplete})
}

func (a *API) handleDiscardRecovery(c *gin.Context) {
	if err := a.services.DiscardRecovery(c.Request.Context()); err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleQueueState(c *gin.Context) {
	c.JSON(http.StatusOK, a.services.Queue.State())
}

func (a *API) handleEnqueue(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "multipart form with files is required")
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		respondMessage(c, http.StatusBadRequest, "missing audio files")
		return
	}
	assets := make([]domain.AudioAsset, 0, len(headers))
	for _, header := range headers {
		audio, err := audioFromHeader(header)
		if err != nil {
			respondMessage(c, http.StatusBadRequest, err.Error())
			return
		}
		assets = append(assets, audio)
	}

	a.services.Queue.Enqueue(assets)
	c.JSON(http.StatusOK, a.services.Queue.State())
}

func (a *API) handleProcessNext(c *gin.Context) {
	started, err := a.services.Queue.ProcessNext(c.Request.Context())
	body := gin.H{"started": started, "state": a.services.Queue.State()}
	if err != nil {
		body["error"] = err.Error()
	}

	switch {
	case errors.Is(err, queue.ErrQueueBusy), errors.Is(err, orchestrator.ErrRunInProgress):
		c.JSON(http.StatusConflict, body)
	default:
		c.JSON(http.StatusOK, body)
	}
}

func (a *API) handleSkip(c *gin.Context) {
	a.services.Queue.Skip()
	c.JSON(http.StatusOK, a.services.Queue.State())
}

func (a *API) handleResetQueue(c *gin.Context) {
	a.services.Queue.Reset()
	c.JSON(http.StatusOK, a.services.Queue.State())
}

func (a *API) handleExport(c *gin.Context) {
	format, err := captions.ParseFormat(c.Query("format"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}

	jobID := c.Param("id")
	job, _, err := a.services.Job(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	if job.Status != domain.JobStatusCompleted {
		respondMessage(c, http.StatusUnprocessableEntity, fmt.Sprintf("job %s is %s", jobID, job.Status))
		return
	}

	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", jobID+"."+format.Extension()))
	if _, err := a.services.Export(c.Request.Context(), c.Writer, jobID, format); err != nil {
		a.services.Logger.Warn("export failed", "job_id", jobID, "format", format, "error", err)
	}
}

func (a *API) handleArchive(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("before"))
	if raw == "" {
		respondMessage(c, http.StatusBadRequest, "before is required (RFC3339)")
		return
	}
	cutoff, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "before must be an RFC3339 timestamp")
		return
	}

	moved, err := a.services.Archive(c.Request.Context(), cutoff)
	if err != nil {
		respondError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": moved})
}

func (a *API) handleEvents(c *gin.Context) {
	c.JSON(http.StatusOK, a.services.Events.Since(sinceParam(c)))
}

// readAudio pulls the "file" part of a multipart upload.
func readAudio(c *gin.Context) (domain.AudioAsset, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		respondMessage(c, http.StatusBadRequest, "missing audio file")
		return domain.AudioAsset{}, false
	}
	audio, err := audioFromHeader(header)
	if err != nil {
		respondMessage(c, http.StatusBadRequest, err.Error())
		return domain.AudioAsset{}, false
	}
	return audio, true
}

func audioFromHeader(header *multipart.FileHeader) (domain.AudioAsset, error) {
	file, err := header.Open()
	if err != nil {
		return domain.AudioAsset{}, fmt.Errorf("unable to read uploaded file %s", header.Filename)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return domain.AudioAsset{}, fmt.Errorf("unable to read uploaded file %s", header.Filename)
	}
	return bootstrap.NewAudio(header.Filename, header.Header.Get("Content-Type"), data), nil
}

// parseModels accepts repeated "models" fields or one comma-separated value.
func parseModels(c *gin.Context) []domain.Model {
	var models []domain.Model
	for _, raw := range c.PostFormArray("models") {
		models = append(models, config.ParseModels(raw)...)
	}
	return models
}

func sinceParam(c *gin.Context) int64 {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		return 0
	}
	return since
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	var validationErr *orchestrator.ValidationError
	var resolutionErr *resolver.ResolutionError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrRunInProgress), errors.Is(err, queue.ErrQueueBusy):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrNoSession), errors.Is(err, records.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &resolutionErr):
		if resolutionErr.Strategy == "" {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, status int, err error) {
	respondMessage(c, status, err.Error())
}

func respondMessage(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
