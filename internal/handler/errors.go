package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/lmsclient"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/session"
	"github.com/stemsi/exstem-attempt/internal/store"
)

// classify maps a domain error to an HTTP status and API error code.
// Submission and load errors are checked first: both may wrap an LMS error.
func classify(err error) (int, response.ErrCode) {
	var subErr *session.SubmissionError
	var loadErr *session.LoadError
	var apiErr *lmsclient.APIError

	switch {
	case errors.As(err, &subErr):
		return http.StatusBadGateway, response.ErrSubmissionFailed
	case errors.As(err, &loadErr):
		if errors.Is(err, session.ErrNoQuestions) {
			return http.StatusUnprocessableEntity, response.ErrNoQuestions
		}
		return http.StatusUnprocessableEntity, response.ErrInvalidPaper
	case errors.Is(err, service.ErrAttemptNotFound):
		return http.StatusNotFound, response.ErrAttemptNotFound
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, response.ErrNoLastAttempt
	case errors.Is(err, lmsclient.ErrNotFound):
		return http.StatusNotFound, response.ErrPaperNotFound
	case errors.Is(err, session.ErrNotRunning):
		return http.StatusConflict, response.ErrSessionNotRunning
	case errors.Is(err, session.ErrSubmitInProgress):
		return http.StatusConflict, response.ErrSubmitInProgress
	case errors.Is(err, session.ErrAlreadyCompleted):
		return http.StatusConflict, response.ErrAlreadyCompleted
	case errors.Is(err, session.ErrUnknownQuestion):
		return http.StatusBadRequest, response.ErrUnknownQuestion
	case errors.Is(err, session.ErrUnknownOption):
		return http.StatusBadRequest, response.ErrUnknownOption
	case errors.Is(err, service.ErrUnsupportedFileType):
		return http.StatusBadRequest, response.ErrUnsupportedFile
	case errors.Is(err, service.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, response.ErrFileTooLarge
	case errors.As(err, &apiErr):
		if apiErr.Status == http.StatusUnauthorized {
			return http.StatusUnauthorized, response.ErrTokenInvalid
		}
		return http.StatusBadGateway, response.ErrUpstream
	default:
		return http.StatusInternalServerError, response.ErrInternal
	}
}

// fail writes the error response for err. Upstream failures carry their
// detail so the student knows a retry may help.
func fail(c *gin.Context, log zerolog.Logger, err error) {
	status, code := classify(err)
	switch code {
	case response.ErrSubmissionFailed, response.ErrUpstream:
		response.FailWithMessage(c, status, code, response.GetMessage(code)+" ("+err.Error()+")")
	case response.ErrInternal:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		response.Fail(c, status, code)
	default:
		response.Fail(c, status, code)
	}
}
