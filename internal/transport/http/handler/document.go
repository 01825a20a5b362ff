package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"docuchat/internal/app"
	"docuchat/internal/pkg/extract"
	"docuchat/internal/transport/http/middleware"
	"docuchat/internal/transport/http/response"
)

// maxUploadBytes bounds in-memory document reads.
const maxUploadBytes = 20 << 20

type DocumentHandler struct {
	ingestService *app.IngestService
}

func NewDocumentHandler(ingestService *app.IngestService) *DocumentHandler {
	return &DocumentHandler{ingestService: ingestService}
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "not authenticated")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file field")
		return
	}
	if fileHeader.Size > maxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "open uploaded file failed")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read uploaded file failed")
		return
	}
	if len(data) > maxUploadBytes {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "file too large")
		return
	}

	result, err := h.ingestService.Ingest(c.Request.Context(), app.IngestInput{
		UserID:   userID,
		Filename: fileHeader.Filename,
		Data:     data,
	})
	if err != nil {
		switch {
		case errors.Is(err, extract.ErrUnsupportedFormat):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unsupported file format")
		case errors.Is(err, app.ErrEmptyContent):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "no extractable text found")
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid upload")
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "ingest document failed")
		}
		return
	}

	response.OK(c, result)
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "not authenticated")
		return
	}

	documents, err := h.ingestService.ListDocuments(userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list documents failed")
		return
	}

	response.OK(c, documents)
}

func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "not authenticated")
		return
	}

	documentID, err := pathID(c, "document_id")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return
	}

	url, err := h.ingestService.DownloadURL(userID, documentID, time.Hour)
	if err != nil {
		if errors.Is(err, app.ErrDocumentNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, "document not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "generate download url failed")
		return
	}

	response.OK(c, gin.H{"url": url})
}
