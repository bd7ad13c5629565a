package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chat-relay/internal/auth"
	"github.com/tbourn/go-chat-relay/internal/domain"
	"github.com/tbourn/go-chat-relay/internal/repo"
	"github.com/tbourn/go-chat-relay/internal/services"
)

// ---------- test plumbing ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:handlers_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// userRepo forwards to the repository free functions.
type userRepo struct{}

func (userRepo) CreateUser(ctx context.Context, db *gorm.DB, in repo.NewUser) (*domain.User, error) {
	return repo.CreateUser(ctx, db, in)
}
func (userRepo) FindUserByName(ctx context.Context, db *gorm.DB, name string) (*domain.User, error) {
	return repo.FindUserByName(ctx, db, name)
}
func (userRepo) FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	return repo.FindUserByEmail(ctx, db, email)
}
func (userRepo) SearchUsersByEmail(ctx context.Context, db *gorm.DB, q string, limit int) ([]domain.User, error) {
	return repo.SearchUsersByEmail(ctx, db, q, limit)
}

type stubVerifier struct {
	id  *auth.GoogleIdentity
	err error
}

func (s stubVerifier) Verify(context.Context, string) (*auth.GoogleIdentity, error) {
	return s.id, s.err
}

type stubExchanger struct {
	tok *oauth2.Token
	err error
}

func (s stubExchanger) Exchange(context.Context, string) (*oauth2.Token, error) {
	return s.tok, s.err
}

// failingAccounts makes every lookup fail with a storage error.
type failingAccounts struct{ AccountService }

var errStorage = errors.New("storage down")

func (failingAccounts) FindByName(context.Context, string) (*domain.User, error) {
	return nil, errStorage
}
func (failingAccounts) Search(context.Context, string, int) ([]domain.User, error) {
	return nil, errStorage
}
func (failingAccounts) ImageURL(context.Context, string) (*string, error) {
	return nil, errStorage
}
func (failingAccounts) Signup(context.Context, auth.SignupRequest) error { return errStorage }
func (failingAccounts) Login(context.Context, auth.LoginRequest) (*services.Session, error) {
	return nil, errStorage
}

type testEnv struct {
	db       *gorm.DB
	accounts *services.AccountService
	history  *services.HistoryService
	router   *gin.Engine
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	accounts := services.NewAccountService(db, userRepo{}, auth.NewTokenIssuer("test-secret", time.Hour))
	accounts.DefaultAvatar = "http://default.png"
	history := &services.HistoryService{DB: db}
	return &testEnv{db: db, accounts: accounts, history: history, router: mount(New(accounts, history))}
}

func mount(h *Handlers) *gin.Engine {
	r := gin.New()
	r.POST("/emailsignup", h.EmailSignup)
	r.POST("/emaillogin", h.EmailLogin)
	r.POST("/googlelogin", h.GoogleLogin)
	r.POST("/auth/google", h.GoogleCode)
	r.GET("/search", h.SearchUsers)
	r.GET("/getImage", h.GetImage)
	r.POST("/messages", h.ListConversation)
	return r
}

func doJSON(r http.Handler, method, path string, body any, hdr ...string) *httptest.ResponseRecorder {
	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeErr(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return er
}

func seedUser(t *testing.T, db *gorm.DB, name, email, image string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), db, repo.NewUser{Name: name, Email: email, ImageURL: image})
	if err != nil {
		t.Fatalf("seed %s: %v", name, err)
	}
	return u
}
