package handler

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
)

// IDCardHandler renders student ID cards.
type IDCardHandler struct {
	cards    *service.IDCardService
	maxBytes int64
	log      zerolog.Logger
}

// NewIDCardHandler creates a new IDCardHandler.
func NewIDCardHandler(cards *service.IDCardService, maxBytes int64, log zerolog.Logger) *IDCardHandler {
	return &IDCardHandler{
		cards:    cards,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "idcard_handler").Logger(),
	}
}

// RenderIDCard godoc
// POST /api/v1/student/id-card
// Optional multipart field "photo" replaces the photo on file.
func (h *IDCardHandler) RenderIDCard(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	// Room for the multipart framing around the photo.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+64*1024)

	var (
		file   multipart.File
		header *multipart.FileHeader
		err    error
	)
	if c.ContentType() == "multipart/form-data" {
		file, header, err = c.Request.FormFile("photo")
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		case errors.Is(err, http.ErrMissingFile):
			file, header = nil, nil
		case err != nil:
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
			return
		default:
			defer file.Close()
		}
	}

	png, err := h.cards.Render(c.Request.Context(), middleware.GetToken(c), file, header)
	if err != nil {
		fail(c, h.log, err)
		return
	}

	c.Header("Content-Disposition", `inline; filename="id-card.png"`)
	c.Data(http.StatusOK, "image/png", png)
}
