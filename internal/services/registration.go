package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/academia/backend/internal/database"
	"github.com/academia/backend/internal/models"
	"github.com/academia/backend/pkg/logger"
	"github.com/academia/backend/pkg/utils"
	"gorm.io/gorm"
)

// ObjectStore is the image boundary the orchestrator depends on.
type ObjectStore interface {
	UploadImage(ctx context.Context, reader io.Reader, size int64, contentType string) (string, error)
}

type DuplicateIdentityError struct {
	Field string
}

func (e *DuplicateIdentityError) Error() string {
	return fmt.Sprintf("%s is already registered", e.Field)
}

type MalformedInputError struct {
	Field string
	Cause error
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Field, e.Cause)
}

var ErrUploadFailed = errors.New("image upload failed")

type StudentInput struct {
	FirstName     string
	LastName      string
	Email         string
	NationalID    string
	Password      string
	LanguagesJSON string
	AddressJSON   string

	PhotoReader      io.Reader
	PhotoSize        int64
	PhotoContentType string
}

type RegistrationService struct {
	DB    *gorm.DB
	Store ObjectStore
	Cards CardRenderer
	Mail  Mailer
}

func NewRegistrationService(db *gorm.DB, store ObjectStore, cards CardRenderer, mail Mailer) *RegistrationService {
	return &RegistrationService{DB: db, Store: store, Cards: cards, Mail: mail}
}

// RegisterStudent runs the registration sequence: parse structured fields,
// check uniqueness, upload the photo (a hard failure), hash the credential,
// persist the pending record, then kick off the best-effort welcome document
// in a detached goroutine that can never fail the response.
func (s *RegistrationService) RegisterStudent(ctx context.Context, in StudentInput) (*models.Student, error) {
	languages, err := parseLanguages(in.LanguagesJSON)
	if err != nil {
		return nil, &MalformedInputError{Field: "languages", Cause: err}
	}

	// Address parsing is tolerant: a malformed payload falls back to an
	// empty address instead of blocking registration. Intentional leniency
	// carried over from the original flow; flagged for product review, not
	// silently tightened.
	address := parseAddressLenient(in.AddressJSON, in.Email)

	if err := s.checkUniqueness(in.Email, in.NationalID); err != nil {
		return nil, err
	}

	var photoURL *string
	if in.PhotoReader != nil {
		url, err := s.Store.UploadImage(ctx, in.PhotoReader, in.PhotoSize, in.PhotoContentType)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
		}
		photoURL = &url
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	student := &models.Student{
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		NationalID:   strings.TrimSpace(in.NationalID),
		PasswordHash: hash,
		Status:       models.StudentStatusPending,
		PhotoURL:     photoURL,
		Address:      address,
		Languages:    languages,
	}

	if err := s.DB.Create(student).Error; err != nil {
		// The precheck is racy; the unique index is the real guarantee.
		if database.IsUniqueViolation(err) {
			field := database.UniqueViolationField(err)
			if field == "" {
				field = "email or national ID"
			}
			return nil, &DuplicateIdentityError{Field: field}
		}
		return nil, err
	}

	go s.sendWelcomeDocument(*student)

	return student, nil
}

func (s *RegistrationService) checkUniqueness(email, nationalID string) error {
	normalized := strings.ToLower(strings.TrimSpace(email))

	var count int64
	if err := s.DB.Model(&models.Student{}).Where("email = ?", normalized).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return &DuplicateIdentityError{Field: "email"}
	}

	if err := s.DB.Model(&models.Student{}).Where("national_id = ?", strings.TrimSpace(nationalID)).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return &DuplicateIdentityError{Field: "national ID"}
	}

	return nil
}

// sendWelcomeDocument renders the identity card and emails it. Runs detached
// from the request: every failure here is logged and dropped because the
// registration has already succeeded and its response must not change.
func (s *RegistrationService) sendWelcomeDocument(student models.Student) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("welcome_document_panic", fmt.Errorf("%v", r), map[string]interface{}{
				"student_id": student.ID.String(),
			})
		}
	}()

	if s.Mail == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	msg := Message{
		ToName:      student.FirstName + " " + student.LastName,
		ToEmail:     student.Email,
		Subject:     "Welcome to Academia",
		TextContent: "Your registration was received and is pending approval. Your student identity card is attached.",
	}

	if s.Cards != nil {
		pdf, err := s.Cards.RenderStudentCard(ctx, &student)
		if err != nil {
			logger.Error("welcome_card_render_failed", err, map[string]interface{}{
				"student_id": student.ID.String(),
			})
		} else {
			msg.Attachments = append(msg.Attachments, Attachment{
				Filename:    "student-card.pdf",
				ContentType: "application/pdf",
				Content:     pdf,
			})
		}
	}

	if err := s.Mail.Send(ctx, msg); err != nil {
		logger.Error("welcome_mail_failed", err, map[string]interface{}{
			"student_id": student.ID.String(),
		})
		return
	}

	logger.Info("welcome_document_sent", map[string]interface{}{
		"student_id":  student.ID.String(),
		"attachments": len(msg.Attachments),
	})
}

func parseLanguages(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var languages []string
	if err := json.Unmarshal([]byte(raw), &languages); err != nil {
		return nil, err
	}
	return languages, nil
}

func parseAddressLenient(raw, email string) models.Address {
	if strings.TrimSpace(raw) == "" {
		return models.Address{}
	}
	var address models.Address
	if err := json.Unmarshal([]byte(raw), &address); err != nil {
		logger.Warn("address_defaulted", map[string]interface{}{
			"email": email,
			"error": err.Error(),
		})
		return models.Address{}
	}
	return address
}
