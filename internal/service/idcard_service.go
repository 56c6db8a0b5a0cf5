package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/idcard"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// Sentinel errors for ID card photos.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// Photo types the renderer can decode.
var allowedMIMETypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// StudentDirectory is the slice of the LMS API the ID card needs.
type StudentDirectory interface {
	GetStudent(ctx context.Context, token string) (*model.Student, error)
	FetchPhoto(ctx context.Context, token, url string) ([]byte, error)
}

// CardRenderer composes an ID card image.
type CardRenderer interface {
	Render(card model.StudentCard) ([]byte, error)
}

// IDCardService renders a student's ID card.
type IDCardService struct {
	students StudentDirectory
	renderer CardRenderer
	maxBytes int64
	log      zerolog.Logger
}

// NewIDCardService creates a new IDCardService.
func NewIDCardService(students StudentDirectory, renderer CardRenderer, maxBytes int64, log zerolog.Logger) *IDCardService {
	return &IDCardService{
		students: students,
		renderer: renderer,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "idcard_service").Logger(),
	}
}

// Render fetches the student's record and renders the card as PNG. An
// uploaded photo takes precedence over the one on file; header may be nil.
func (s *IDCardService) Render(ctx context.Context, token string, file multipart.File, header *multipart.FileHeader) ([]byte, error) {
	student, err := s.students.GetStudent(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get student: %w", err)
	}

	var photo []byte
	switch {
	case header != nil:
		photo, err = s.readUpload(file, header)
		if err != nil {
			return nil, err
		}
	case student.PhotoURL != "":
		photo, err = s.fetchPhoto(ctx, token, student.PhotoURL)
		if err != nil {
			// The card still renders, with a placeholder.
			s.log.Warn().Err(err).Int("student_id", student.ID).Msg("Photo unavailable, using placeholder")
			photo = nil
		}
	}

	card := model.StudentCard{
		Name:       student.Name,
		RollNumber: student.RollNumber,
		Course:     student.Course,
		Batch:      student.Batch,
		Email:      student.Email,
		Photo:      photo,
	}
	out, err := s.renderer.Render(card)
	if !errors.Is(err, idcard.ErrInvalidPhoto) {
		return out, err
	}
	if header != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFileType, err)
	}

	s.log.Warn().Err(err).Int("student_id", student.ID).Msg("Photo on file is corrupt, using placeholder")
	card.Photo = nil
	return s.renderer.Render(card)
}

func (s *IDCardService) readUpload(file multipart.File, header *multipart.FileHeader) ([]byte, error) {
	contentType := header.Header.Get("Content-Type")
	if !allowedMIMETypes[contentType] {
		return nil, fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFileType, contentType, strings.Join(allowedTypes(), ", "))
	}
	if header.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, s.maxBytes)
	}
	if sniffed := http.DetectContentType(data); !allowedMIMETypes[sniffed] {
		return nil, fmt.Errorf("%w: content is %s, declared %s", ErrUnsupportedFileType, sniffed, contentType)
	}
	return data, nil
}

func (s *IDCardService) fetchPhoto(ctx context.Context, token, url string) ([]byte, error) {
	data, err := s.students.FetchPhoto(ctx, token, url)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, len(data), s.maxBytes)
	}
	if ct := http.DetectContentType(data); !allowedMIMETypes[ct] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFileType, ct)
	}
	return data, nil
}

func allowedTypes() []string {
	types := make([]string, 0, len(allowedMIMETypes))
	for t := range allowedMIMETypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
