package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"
	"time"

	"github.com/academia/backend/internal/models"
	"github.com/academia/backend/pkg/utils"
)

type registrationForm struct {
	fields map[string]string
	photo  []byte
}

func defaultRegistrationForm() registrationForm {
	return registrationForm{
		fields: map[string]string{
			"firstName":  "Thandi",
			"lastName":   "Nkosi",
			"email":      "thandi@test.com",
			"nationalID": "9001015009087",
			"password":   "password123",
			"languages":  `["en","zu"]`,
			"address":    `{"street":"1 Main Rd","city":"Cape Town","country":"ZA"}`,
		},
	}
}

func performRegistration(t *testing.T, env *testEnv, form registrationForm) *http.Response {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for key, value := range form.fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed writing form field %s: %v", key, err)
		}
	}
	if form.photo != nil {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="photo"; filename="photo.png"`)
		header.Set("Content-Type", "image/png")
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("failed creating photo part: %v", err)
		}
		if _, err := part.Write(form.photo); err != nil {
			t.Fatalf("failed writing photo bytes: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	return performRequest(t, env.app, http.MethodPost, "/api/students/register", body, map[string]string{
		"Content-Type": writer.FormDataContentType(),
	})
}

func TestStudentsHandler_Register(t *testing.T) {
	env := setupTestEnv(t)

	form := defaultRegistrationForm()
	form.photo = []byte{0x89, 'P', 'N', 'G'}

	resp := performRegistration(t, env, form)
	assertStatus(t, resp, http.StatusCreated)

	body := decodeJSONMap(t, resp)
	data := body["data"].(map[string]interface{})
	student := data["student"].(map[string]interface{})

	if student["status"].(string) != "pending" {
		t.Fatalf("expected pending status, got %q", student["status"])
	}
	if student["photoURL"].(string) == "" {
		t.Fatal("expected stored photo URL")
	}
	if _, hasToken := data["token"]; hasToken {
		t.Fatal("registration must not issue a session token")
	}

	var stored models.Student
	if err := env.db.First(&stored, "email = ?", "thandi@test.com").Error; err != nil {
		t.Fatalf("failed loading student: %v", err)
	}
	if stored.PasswordHash == "password123" {
		t.Fatal("password stored in plaintext")
	}
	if !utils.CheckPassword("password123", stored.PasswordHash) {
		t.Fatal("stored hash does not verify the original password")
	}
	if len(stored.Languages) != 2 {
		t.Fatalf("expected 2 languages, got %d", len(stored.Languages))
	}
	if stored.Address.City != "Cape Town" {
		t.Fatalf("unexpected address city %q", stored.Address.City)
	}
}

func TestStudentsHandler_Register_DuplicateEmail(t *testing.T) {
	env := setupTestEnv(t)
	createTestStudent(t, env.db, "thandi@test.com", "8012245009081", "password123", models.StudentStatusPending)

	resp := performRegistration(t, env, defaultRegistrationForm())
	assertStatus(t, resp, http.StatusConflict)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "email is already registered")
}

func TestStudentsHandler_Register_DuplicateNationalID(t *testing.T) {
	env := setupTestEnv(t)
	createTestStudent(t, env.db, "other@test.com", "9001015009087", "password123", models.StudentStatusPending)

	resp := performRegistration(t, env, defaultRegistrationForm())
	assertStatus(t, resp, http.StatusConflict)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "national ID is already registered")
}

func TestStudentsHandler_Register_InvalidNationalID(t *testing.T) {
	env := setupTestEnv(t)

	form := defaultRegistrationForm()
	form.fields["nationalID"] = "12345"
	resp := performRegistration(t, env, form)
	assertStatus(t, resp, http.StatusBadRequest)

	form.fields["nationalID"] = "90010150090AB"
	resp = performRegistration(t, env, form)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestStudentsHandler_Register_MalformedLanguages(t *testing.T) {
	env := setupTestEnv(t)

	form := defaultRegistrationForm()
	form.fields["languages"] = "{not json"
	resp := performRegistration(t, env, form)
	assertStatus(t, resp, http.StatusBadRequest)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "malformed languages")
}

func TestStudentsHandler_Register_MalformedAddressTolerated(t *testing.T) {
	env := setupTestEnv(t)

	// A malformed address is downgraded to the empty address rather than
	// rejecting the registration.
	form := defaultRegistrationForm()
	form.fields["address"] = "{bad json"
	resp := performRegistration(t, env, form)
	assertStatus(t, resp, http.StatusCreated)

	var stored models.Student
	if err := env.db.First(&stored, "email = ?", "thandi@test.com").Error; err != nil {
		t.Fatalf("failed loading student: %v", err)
	}
	if stored.Address != (models.Address{}) {
		t.Fatalf("expected empty address, got %+v", stored.Address)
	}
}

func TestStudentsHandler_Register_UploadFailure(t *testing.T) {
	env := setupTestEnv(t)
	env.store.failUploads = true

	form := defaultRegistrationForm()
	form.photo = []byte{0x89, 'P', 'N', 'G'}
	resp := performRegistration(t, env, form)
	assertStatus(t, resp, http.StatusInternalServerError)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "failed uploading photo")

	var count int64
	env.db.Model(&models.Student{}).Where("email = ?", "thandi@test.com").Count(&count)
	if count != 0 {
		t.Fatal("failed upload must not leave a stored student")
	}
}

func TestStudentsHandler_Register_MailFailureDoesNotAffectResponse(t *testing.T) {
	env := setupTestEnv(t)
	env.mailer.fail = true

	resp := performRegistration(t, env, defaultRegistrationForm())
	assertStatus(t, resp, http.StatusCreated)
}

func TestStudentsHandler_Register_SendsWelcomeMail(t *testing.T) {
	env := setupTestEnv(t)

	resp := performRegistration(t, env, defaultRegistrationForm())
	assertStatus(t, resp, http.StatusCreated)

	// Delivery happens on a detached goroutine after the response.
	deadline := time.Now().Add(3 * time.Second)
	for env.mailer.sentCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("welcome mail was never handed to the mailer")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.mailer.mu.Lock()
	defer env.mailer.mu.Unlock()
	msg := env.mailer.sent[0]
	if msg.ToEmail != "thandi@test.com" {
		t.Fatalf("unexpected recipient %q", msg.ToEmail)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	if msg.Attachments[0].ContentType != "application/pdf" {
		t.Fatalf("unexpected attachment type %q", msg.Attachments[0].ContentType)
	}
}

func TestStudentsHandler_Login_ApprovedOnly(t *testing.T) {
	env := setupTestEnv(t)
	createTestStudent(t, env.db, "pending@test.com", "9202285009082", "password123", models.StudentStatusPending)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/students/login", map[string]interface{}{
		"email":    "pending@test.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusForbidden)
	assertEnvelopeError(t, decodeJSONMap(t, resp), "account is pending approval")
}

func TestStudentsHandler_Login(t *testing.T) {
	env := setupTestEnv(t)
	createTestStudent(t, env.db, "approved@test.com", "9202285009082", "password123", models.StudentStatusApproved)

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/students/login", map[string]interface{}{
		"email":    "approved@test.com",
		"password": "password123",
	}, nil)
	assertStatus(t, resp, http.StatusOK)

	data := decodeJSONMap(t, resp)["data"].(map[string]interface{})
	token := data["token"].(string)
	if token == "" {
		t.Fatal("expected session token")
	}

	resp = performRequest(t, env.app, http.MethodGet, "/api/students/me", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	me := decodeJSONMap(t, resp)["data"].(map[string]interface{})
	if me["email"].(string) != "approved@test.com" {
		t.Fatalf("unexpected email %q", me["email"])
	}
}

func TestStudentsHandler_StudentTokenCannotReachStaffRoutes(t *testing.T) {
	env := setupTestEnv(t)
	student := createTestStudent(t, env.db, "limited@test.com", "9202285009082", "password123", models.StudentStatusApproved)

	token, err := utils.GenerateToken(student.ID, student.Email, models.RoleStudent)
	if err != nil {
		t.Fatalf("failed generating token: %v", err)
	}

	resp := performRequest(t, env.app, http.MethodGet, "/api/students/", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusForbidden)
}

func TestStudentsHandler_SetStatus(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin@test.com", "password123", models.UserRoleAdmin)
	student := createTestStudent(t, env.db, "toapprove@test.com", "9202285009082", "password123", models.StudentStatusPending)

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/students/"+student.ID.String()+"/status", map[string]interface{}{
		"status": "approved",
	}, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)

	var stored models.Student
	if err := env.db.First(&stored, "id = ?", student.ID).Error; err != nil {
		t.Fatalf("failed loading student: %v", err)
	}
	if stored.Status != models.StudentStatusApproved {
		t.Fatalf("expected approved, got %q", stored.Status)
	}

	resp = performJSONRequest(t, env.app, http.MethodPut, "/api/students/"+student.ID.String()+"/status", map[string]interface{}{
		"status": "graduated",
	}, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestStudentsHandler_SetStatus_RequiresAdmin(t *testing.T) {
	env := setupTestEnv(t)
	_, teacherToken := createTestUser(t, env.db, "teacher@test.com", "password123", models.UserRoleTeacher)
	student := createTestStudent(t, env.db, "locked@test.com", "9202285009082", "password123", models.StudentStatusPending)

	resp := performJSONRequest(t, env.app, http.MethodPut, "/api/students/"+student.ID.String()+"/status", map[string]interface{}{
		"status": "approved",
	}, authHeaders(teacherToken))
	assertStatus(t, resp, http.StatusForbidden)
}

func TestStudentsHandler_List_FilterByStatus(t *testing.T) {
	env := setupTestEnv(t)
	_, adminToken := createTestUser(t, env.db, "admin@test.com", "password123", models.UserRoleAdmin)
	createTestStudent(t, env.db, "p1@test.com", "9202285009081", "password123", models.StudentStatusPending)
	createTestStudent(t, env.db, "a1@test.com", "9202285009082", "password123", models.StudentStatusApproved)
	createTestStudent(t, env.db, "a2@test.com", "9202285009083", "password123", models.StudentStatusApproved)

	resp := performRequest(t, env.app, http.MethodGet, "/api/students/?status=approved", nil, authHeaders(adminToken))
	assertStatus(t, resp, http.StatusOK)

	body := decodeJSONMap(t, resp)
	data := body["data"].([]interface{})
	if len(data) != 2 {
		t.Fatalf("expected 2 approved students, got %d", len(data))
	}

	pagination := body["pagination"].(map[string]interface{})
	if int(pagination["totalRecords"].(float64)) != 2 {
		t.Fatalf("expected totalRecords 2, got %v", pagination["totalRecords"])
	}
}
