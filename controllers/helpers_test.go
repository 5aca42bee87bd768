package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quillworks/quill/config"
	"github.com/quillworks/quill/middleware"
	"github.com/quillworks/quill/models"
	"github.com/quillworks/quill/utils"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	config.SetForTesting(config.AppConfig{
		JWTSecret:       "test-secret",
		TokenTTLHours:   24,
		FrontendBaseURL: "http://localhost:3000",
		MaxImageBytes:   5 * 1024 * 1024,
		// nothing listens here; cache paths degrade to misses
		RedisHost: "127.0.0.1",
		RedisPort: 6399,
		LogLevel:  "error",
	})
	if err := utils.InitLogger(config.Get()); err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// in-memory sqlite is per-connection; keep the pool at one
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Like{},
	))
	return db
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail bool
}

func (f *fakeMailer) Send(to, subject, htmlBody string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: htmlBody})
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeMailer) last() sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeImages struct {
	mu         sync.Mutex
	uploads    []string
	deletes    []string
	failUpload bool
}

func (f *fakeImages) Upload(_ context.Context, data []byte, filename string) (*models.ImageMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpload {
		return nil, errors.New("storage unavailable")
	}
	providerID := "posts/" + filename
	f.uploads = append(f.uploads, providerID)
	return &models.ImageMeta{
		URL:        "http://images.test/" + providerID,
		ProviderID: providerID,
		Width:      4,
		Height:     4,
		SizeBytes:  int64(len(data)),
		Format:     "png",
	}, nil
}

func (f *fakeImages) Delete(_ context.Context, providerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, providerID)
	return nil
}

func newTestRouter(db *gorm.DB, mailer utils.Mailer, images *fakeImages) *gin.Engine {
	r := gin.New()

	authController := NewAuthController(db, mailer)
	postController := NewPostController(db, images)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authController.Register)
	authGroup.POST("/login", authController.Login)
	authGroup.POST("/request-password-reset", authController.RequestPasswordReset)
	authGroup.POST("/reset-password", authController.ResetPassword)
	authGroup.GET("/me", middleware.AuthRequired(), authController.Me)

	postsGroup := api.Group("/posts")
	postsGroup.GET("", middleware.AuthOptional(), postController.ListPosts)
	postsGroup.GET("/search_top", middleware.AuthOptional(), postController.SearchTop)
	postsGroup.GET("/:id", middleware.AuthOptional(), postController.GetPost)
	postsGroup.GET("/:id/comments", middleware.AuthOptional(), postController.ListComments)

	protected := api.Group("/posts")
	protected.Use(middleware.AuthRequired())
	protected.POST("", postController.CreatePost)
	protected.PUT("/:id", postController.UpdatePost)
	protected.DELETE("/:id", postController.DeletePost)
	protected.POST("/:id/like", postController.ToggleLike)
	protected.POST("/:id/comments", postController.CreateComment)
	protected.DELETE("/:id/comments/:commentId", postController.DeleteComment)

	return r
}

func createUser(t *testing.T, db *gorm.DB, username, email, password string) models.User {
	t.Helper()
	hash, err := utils.HashPassword(password)
	require.NoError(t, err)
	user := models.User{Username: username, Email: email, PasswordHash: hash}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func authToken(t *testing.T, user models.User) string {
	t.Helper()
	token, err := utils.GenerateToken(user.ID, user.Username, time.Hour)
	require.NoError(t, err)
	return token
}

func perform(r http.Handler, method, path, token, contentType string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func performJSON(r http.Handler, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewReader(b)
	}
	return perform(r, method, path, token, "application/json", body)
}

type envelope struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func buildMultipart(t *testing.T, fields map[string]string, fileField, fileName string, fileData []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(fileData)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func createPost(t *testing.T, r http.Handler, token, title, body string, tags []string) uint {
	t.Helper()
	w := performJSON(r, http.MethodPost, "/api/posts", token, gin.H{
		"title": title,
		"body":  body,
		"tags":  tags,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decode(t, w)
	post := env.Data["post"].(map[string]interface{})
	return uint(post["id"].(float64))
}
