package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sakif/exam-archive/internal/apperror"
	"github.com/sakif/exam-archive/internal/auth"
	"github.com/sakif/exam-archive/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory repository.UserRepository keyed by email.
type fakeUserRepo struct {
	byID      map[string]*model.User
	byEmail   map[string]*model.User
	nextID    int
	upsertErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		byID:    make(map[string]*model.User),
		byEmail: make(map[string]*model.User),
	}
}

func (f *fakeUserRepo) UpsertByEmail(_ context.Context, user *model.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.byEmail[user.Email]; ok {
		existing.GoogleID = user.GoogleID
		existing.Name = user.Name
		existing.AvatarURL = user.AvatarURL
		existing.UpdatedAt = time.Now()
		*user = *existing
		return nil
	}
	f.nextID++
	user.ID = fmt.Sprintf("user-%d", f.nextID)
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := *user
	f.byID[user.ID] = &stored
	f.byEmail[user.Email] = &stored
	return nil
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	copied := *u
	return &copied, nil
}

func newTestAuthService(t *testing.T, repo *fakeUserRepo, domain string) (*AuthService, *auth.TokenService) {
	t.Helper()
	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!", 0, 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return NewAuthService(repo, ts, domain, testLogger()), ts
}

func googleUser(sub, email string) *auth.GoogleUser {
	return &auth.GoogleUser{Sub: sub, Email: email, EmailVerified: true, Name: "Student " + sub}
}

// =========================================================================
// LoginOrRegisterGoogle TESTS
// =========================================================================

func TestLoginOrRegisterGoogle_NewUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc, tokens := newTestAuthService(t, repo, "g.ntu.edu.tw")

	result, err := svc.LoginOrRegisterGoogle(context.Background(), googleUser("g-1", "B10901001@g.ntu.edu.tw"))
	if err != nil {
		t.Fatalf("LoginOrRegisterGoogle() error = %v", err)
	}
	if result.User.ID == "" {
		t.Fatal("User.ID should be set after upsert")
	}
	if result.User.Email != "b10901001@g.ntu.edu.tw" {
		t.Errorf("Email = %q, want lowercased", result.User.Email)
	}

	id, err := tokens.Validate(result.Token)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if id.Subject != result.User.ID || id.Role != auth.RoleUser {
		t.Errorf("token identity = %+v, want %s/user", id, result.User.ID)
	}
}

func TestLoginOrRegisterGoogle_ExistingUserKeepsID(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo, "g.ntu.edu.tw")
	ctx := context.Background()

	first, err := svc.LoginOrRegisterGoogle(ctx, googleUser("g-1", "r11@g.ntu.edu.tw"))
	if err != nil {
		t.Fatalf("first login: %v", err)
	}

	again := googleUser("g-1", "r11@g.ntu.edu.tw")
	again.Name = "Renamed"
	second, err := svc.LoginOrRegisterGoogle(ctx, again)
	if err != nil {
		t.Fatalf("second login: %v", err)
	}

	if second.User.ID != first.User.ID {
		t.Errorf("ID changed across sign-ins: %q -> %q", first.User.ID, second.User.ID)
	}
	if second.User.Name != "Renamed" {
		t.Errorf("Name = %q, want refreshed profile", second.User.Name)
	}
}

func TestLoginOrRegisterGoogle_DomainRestriction(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo, "@g.ntu.edu.tw")

	rejected := []*auth.GoogleUser{
		googleUser("g-2", "someone@gmail.com"),
		googleUser("g-3", "someone@evil-g.ntu.edu.tw"),
		googleUser("g-4", "g.ntu.edu.tw@gmail.com"),
		{Sub: "g-5", Email: "b1@g.ntu.edu.tw", EmailVerified: false},
	}
	for _, gu := range rejected {
		_, err := svc.LoginOrRegisterGoogle(context.Background(), gu)
		if !errors.Is(err, apperror.ErrForbidden) {
			t.Errorf("%s: error = %v, want ErrForbidden", gu.Email, err)
		}
	}
	if len(repo.byID) != 0 {
		t.Errorf("rejected sign-ins created %d users", len(repo.byID))
	}
}

func TestLoginOrRegisterGoogle_AnyDomainWhenUnset(t *testing.T) {
	svc, _ := newTestAuthService(t, newFakeUserRepo(), "")

	if _, err := svc.LoginOrRegisterGoogle(context.Background(), googleUser("g-1", "x@example.com")); err != nil {
		t.Errorf("LoginOrRegisterGoogle() error = %v", err)
	}
}

func TestLoginOrRegisterGoogle_Errors(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo, "g.ntu.edu.tw")

	if _, err := svc.LoginOrRegisterGoogle(context.Background(), nil); err == nil {
		t.Fatal("nil Google user should fail")
	}

	repo.upsertErr = errors.New("database is on fire")
	_, err := svc.LoginOrRegisterGoogle(context.Background(), googleUser("g-1", "a@g.ntu.edu.tw"))
	if !errors.Is(err, apperror.ErrDependency) {
		t.Errorf("error = %v, want ErrDependency", err)
	}
}

// =========================================================================
// CurrentUser TESTS
// =========================================================================

func TestCurrentUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc, _ := newTestAuthService(t, repo, "g.ntu.edu.tw")
	ctx := context.Background()

	result, _ := svc.LoginOrRegisterGoogle(ctx, googleUser("g-7", "findme@g.ntu.edu.tw"))

	u, err := svc.CurrentUser(ctx, result.User.ID)
	if err != nil {
		t.Fatalf("CurrentUser() error = %v", err)
	}
	if u.Email != "findme@g.ntu.edu.tw" {
		t.Errorf("Email = %q", u.Email)
	}

	for _, id := range []string{"", "user-999"} {
		_, err := svc.CurrentUser(ctx, id)
		if !errors.Is(err, apperror.ErrUnauthenticated) {
			t.Errorf("CurrentUser(%q) error = %v, want ErrUnauthenticated", id, err)
		}
	}
}
