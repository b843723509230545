package resources

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/classlive/backend/internal/live"
	"github.com/classlive/backend/internal/middleware"
	"github.com/classlive/backend/internal/models"
	"github.com/classlive/backend/pkg/response"
	"github.com/classlive/backend/pkg/storage"
)

// UploadRequest is the body for POST /sessions/:id/resources. The server
// registers the resource and hands back a presigned PUT URL for the
// client to upload against.
type UploadRequest struct {
	FileName string `json:"file_name" binding:"required"`
	FileType string `json:"file_type"`
}

// UploadResponse pairs the registered resource with its upload URL.
type UploadResponse struct {
	Resource  *models.Resource `json:"resource"`
	UploadURL string           `json:"upload_url"`
}

// DownloadResponse carries a presigned GET URL for a resource.
type DownloadResponse struct {
	Resource    *models.Resource `json:"resource"`
	DownloadURL string           `json:"download_url"`
}

// Handler handles session resource endpoints.
type Handler struct {
	orch *live.Orchestrator
	repo *Repository
	s3   *storage.S3
}

// NewHandler creates a resources handler.
func NewHandler(orch *live.Orchestrator, repo *Repository, s3 *storage.S3) *Handler {
	return &Handler{orch: orch, repo: repo, s3: s3}
}

// Upload handles POST /sessions/:id/resources (professor only).
func (h *Handler) Upload(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	p := middleware.PrincipalFrom(c)

	var req UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !storage.ValidateResourceFileType(req.FileType, req.FileName) {
		response.BadRequest(c, "unsupported file type")
		return
	}

	s, err := h.orch.GetSession(sessionID)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), "session not found")
		return
	}
	if !p.Presides(s) {
		response.Forbidden(c, "only the session professor may upload resources")
		return
	}

	contentType := req.FileType
	if contentType == "" {
		contentType = storage.ContentTypeForFilename(req.FileName)
	}

	res := &models.Resource{
		ID:         uuid.New(),
		SessionID:  sessionID,
		FileName:   req.FileName,
		FileType:   contentType,
		UploadedBy: p.ID,
		UploadedAt: time.Now().UTC(),
	}
	res.ObjectKey = storage.ResourceKey(sessionID.String(), res.ID.String(), req.FileName)

	uploadURL, err := h.s3.GeneratePresignedUploadURL(c.Request.Context(), res.ObjectKey, contentType, h.s3.PresignExpire())
	if err != nil {
		response.Internal(c, "failed to presign upload")
		return
	}
	if err := h.repo.Create(c.Request.Context(), res); err != nil {
		response.Internal(c, "failed to save resource")
		return
	}

	response.Created(c, UploadResponse{Resource: res, UploadURL: uploadURL})
}

// List handles GET /sessions/:id/resources.
func (h *Handler) List(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	if _, err := h.orch.GetSession(sessionID); err != nil {
		response.Error(c, live.ErrorStatus(err), "session not found")
		return
	}

	list, err := h.repo.ListBySession(c.Request.Context(), sessionID)
	if err != nil {
		response.Internal(c, "failed to list resources")
		return
	}
	response.OK(c, list)
}

// Download handles GET /sessions/:id/resources/:resourceId/download.
func (h *Handler) Download(c *gin.Context) {
	sessionID, resourceID, ok := h.ids(c)
	if !ok {
		return
	}

	res, err := h.repo.GetByID(c.Request.Context(), resourceID)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), "resource not found")
		return
	}
	if res.SessionID != sessionID {
		response.NotFound(c, "resource not found")
		return
	}

	url, err := h.s3.GeneratePresignedDownloadURL(c.Request.Context(), res.ObjectKey, h.s3.PresignExpire())
	if err != nil {
		response.Internal(c, "failed to presign download")
		return
	}
	response.OK(c, DownloadResponse{Resource: res, DownloadURL: url})
}

// Delete handles DELETE /sessions/:id/resources/:resourceId (professor only).
func (h *Handler) Delete(c *gin.Context) {
	sessionID, resourceID, ok := h.ids(c)
	if !ok {
		return
	}
	p := middleware.PrincipalFrom(c)

	s, err := h.orch.GetSession(sessionID)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), "session not found")
		return
	}
	if !p.Presides(s) {
		response.Forbidden(c, "only the session professor may delete resources")
		return
	}

	res, err := h.repo.GetByID(c.Request.Context(), resourceID)
	if err != nil {
		response.Error(c, live.ErrorStatus(err), "resource not found")
		return
	}
	if res.SessionID != sessionID {
		response.NotFound(c, "resource not found")
		return
	}

	if err := h.s3.DeleteObject(c.Request.Context(), res.ObjectKey); err != nil {
		response.Internal(c, "failed to delete object")
		return
	}
	if err := h.repo.Delete(c.Request.Context(), resourceID); err != nil {
		response.Internal(c, "failed to delete resource")
		return
	}
	response.NoContent(c)
}

func (h *Handler) ids(c *gin.Context) (sessionID, resourceID uuid.UUID, ok bool) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return uuid.Nil, uuid.Nil, false
	}
	resourceID, err = uuid.Parse(c.Param("resourceId"))
	if err != nil {
		response.BadRequest(c, "invalid resource id")
		return uuid.Nil, uuid.Nil, false
	}
	return sessionID, resourceID, true
}
