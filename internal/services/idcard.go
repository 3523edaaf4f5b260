package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/academia/backend/internal/config"
	"github.com/academia/backend/internal/models"
	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// CardRenderer produces the student identity document delivered after
// registration.
type CardRenderer interface {
	RenderStudentCard(ctx context.Context, student *models.Student) ([]byte, error)
}

type IDCardService struct {
	Gotenberg  config.GotenbergConfig
	HTTPClient *http.Client
}

func NewIDCardService(cfg config.GotenbergConfig) *IDCardService {
	return &IDCardService{
		Gotenberg: cfg,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

var cardTemplate = template.Must(template.New("card").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
  body { font-family: Helvetica, Arial, sans-serif; margin: 0; padding: 24px; }
  .card { width: 420px; border: 2px solid #1a3c6e; border-radius: 8px; padding: 16px; }
  .card h1 { font-size: 18px; color: #1a3c6e; margin: 0 0 12px; }
  .row { display: flex; gap: 16px; }
  .photo img { width: 96px; height: 96px; object-fit: cover; border-radius: 4px; }
  .fields p { margin: 2px 0; font-size: 13px; }
  .fields .label { color: #777; margin-right: 4px; }
  .qr { margin-top: 12px; text-align: right; }
  .qr img { width: 120px; height: 120px; }
</style>
</head>
<body>
<div class="card">
  <h1>Student Identity Card</h1>
  <div class="row">
    {{if .PhotoURL}}<div class="photo"><img src="{{.PhotoURL}}" alt="photo"></div>{{end}}
    <div class="fields">
      <p><span class="label">Name</span> {{.FirstName}} {{.LastName}}</p>
      <p><span class="label">Email</span> {{.Email}}</p>
      <p><span class="label">National ID</span> {{.NationalID}}</p>
      <p><span class="label">Status</span> {{.Status}}</p>
      <p><span class="label">Issued</span> {{.IssuedAt}}</p>
    </div>
  </div>
  <div class="qr"><img src="data:image/png;base64,{{.QRBase64}}" alt="qr"></div>
</div>
</body>
</html>`))

type cardTemplateData struct {
	FirstName  string
	LastName   string
	Email      string
	NationalID string
	Status     string
	IssuedAt   string
	PhotoURL   string
	QRBase64   string
}

// RenderStudentCard lays the card out as HTML and converts it to PDF through
// Gotenberg, the same engine used for every document conversion here.
func (s *IDCardService) RenderStudentCard(ctx context.Context, student *models.Student) ([]byte, error) {
	qrImage, err := studentQRCode(student)
	if err != nil {
		return nil, fmt.Errorf("failed encoding card QR: %w", err)
	}

	data := cardTemplateData{
		FirstName:  student.FirstName,
		LastName:   student.LastName,
		Email:      student.Email,
		NationalID: student.NationalID,
		Status:     string(student.Status),
		IssuedAt:   time.Now().Format("2006-01-02"),
		QRBase64:   qrImage,
	}
	if student.PhotoURL != nil {
		data.PhotoURL = *student.PhotoURL
	}

	var html bytes.Buffer
	if err := cardTemplate.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("failed rendering card template: %w", err)
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("files", "index.html")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(html.Bytes()); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	endpoint := strings.TrimRight(s.Gotenberg.URL, "/") + "/forms/chromium/convert/html"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gotenberg returned status %d: %s", resp.StatusCode, raw)
	}

	return io.ReadAll(resp.Body)
}

// studentQRCode encodes {id, email} as a scannable code embedded in the card.
func studentQRCode(student *models.Student) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"id":    student.ID.String(),
		"email": student.Email,
	})
	if err != nil {
		return "", err
	}

	code, err := qr.Encode(string(payload), qr.M, qr.Auto)
	if err != nil {
		return "", err
	}
	scaled, err := barcode.Scale(code, 240, 240)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
