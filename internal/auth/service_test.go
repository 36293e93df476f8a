package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/marquee/internal/model"
)

// --- モック ---

type mockUserResolver struct {
	findByEmailFn      func(ctx context.Context, email string) (*model.User, error)
	findByIDFn         func(ctx context.Context, id string) (*model.User, error)
	createFromSignupFn func(ctx context.Context, p model.Profile) (string, error)
	resolveExternalFn  func(ctx context.Context, ext model.ExternalIdentity) (*model.User, error)
}

func (m *mockUserResolver) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserResolver) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserResolver) CreateFromSignup(ctx context.Context, p model.Profile) (string, error) {
	if m.createFromSignupFn != nil {
		return m.createFromSignupFn(ctx, p)
	}
	return "new-user-id", nil
}

func (m *mockUserResolver) ResolveExternal(ctx context.Context, ext model.ExternalIdentity) (*model.User, error) {
	if m.resolveExternalFn != nil {
		return m.resolveExternalFn(ctx, ext)
	}
	return nil, nil
}

type mockVerifier struct {
	verifyFn func(ctx context.Context, raw string) (*model.ExternalIdentity, error)
}

func (m *mockVerifier) Verify(ctx context.Context, raw string) (*model.ExternalIdentity, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, raw)
	}
	return nil, model.NewInvalidIDTokenError()
}

func newTestService(t *testing.T, users *mockUserResolver, google *mockVerifier) (*Service, *memorySessionRepo) {
	t.Helper()
	m, repo, _, _ := newTestManager(t)
	return NewService(m, users, google), repo
}

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != code {
		t.Errorf("code = %q, want %q", apiErr.Code, code)
	}
}

// --- Signup ---

func TestSignup_NewEmail_StartsSession(t *testing.T) {
	var created model.Profile
	users := &mockUserResolver{
		createFromSignupFn: func(ctx context.Context, p model.Profile) (string, error) {
			created = p
			return "user-42", nil
		},
	}
	svc, repo := newTestService(t, users, &mockVerifier{})

	res, err := svc.Signup(context.Background(), model.Profile{Email: "new@x.com", FirstName: "New"}, "",
		RequestMeta{UserAgent: "UA", IP: "198.51.100.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.UserID != "user-42" {
		t.Errorf("UserID = %q", res.UserID)
	}
	if res.Session.Claims.UserID != "user-42" || res.Session.Claims.Email != "new@x.com" {
		t.Errorf("unexpected claims: %+v", res.Session.Claims)
	}
	if created.GoogleSub != "" || created.GoogleEmailVerified != nil {
		t.Errorf("google fields should be empty without ID token: %+v", created)
	}
	row := repo.rows[res.Session.Claims.SessionID]
	if row == nil || row.UserAgent != "UA" || row.IP != "198.51.100.1" {
		t.Errorf("unexpected session row: %+v", row)
	}
}

func TestSignup_ExistingEmail_NoRowNoSession(t *testing.T) {
	createCalled := false
	users := &mockUserResolver{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "u-1", Email: email}, nil
		},
		createFromSignupFn: func(ctx context.Context, p model.Profile) (string, error) {
			createCalled = true
			return "", nil
		},
	}
	svc, repo := newTestService(t, users, &mockVerifier{})

	res, err := svc.Signup(context.Background(), model.Profile{Email: "a@b.com"}, "", RequestMeta{})
	assertAPIErrorCode(t, err, model.ErrCodeUserExists)

	if res != nil {
		t.Error("expected nil result")
	}
	if createCalled {
		t.Error("user should not be created")
	}
	if repo.count() != 0 {
		t.Errorf("sessions = %d, want 0", repo.count())
	}
}

func TestSignup_CreateRace_UserExists(t *testing.T) {
	users := &mockUserResolver{
		createFromSignupFn: func(ctx context.Context, p model.Profile) (string, error) {
			return "", model.NewUserExistsError()
		},
	}
	svc, repo := newTestService(t, users, &mockVerifier{})

	_, err := svc.Signup(context.Background(), model.Profile{Email: "a@b.com"}, "", RequestMeta{})
	assertAPIErrorCode(t, err, model.ErrCodeUserExists)
	if repo.count() != 0 {
		t.Errorf("sessions = %d, want 0", repo.count())
	}
}

func TestSignup_WithGoogleIDToken_LinksIdentity(t *testing.T) {
	var created model.Profile
	users := &mockUserResolver{
		createFromSignupFn: func(ctx context.Context, p model.Profile) (string, error) {
			created = p
			return "user-7", nil
		},
	}
	google := &mockVerifier{
		verifyFn: func(ctx context.Context, raw string) (*model.ExternalIdentity, error) {
			if raw != "google-token" {
				t.Errorf("raw = %q", raw)
			}
			return &model.ExternalIdentity{Subject: "sub-7", Email: "g@x.com", EmailVerified: true}, nil
		},
	}
	svc, _ := newTestService(t, users, google)

	if _, err := svc.Signup(context.Background(), model.Profile{Email: "a@b.com"}, "google-token", RequestMeta{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created.GoogleSub != "sub-7" || created.GoogleEmail != "g@x.com" {
		t.Errorf("google fields not set: %+v", created)
	}
	if created.GoogleEmailVerified == nil || !*created.GoogleEmailVerified {
		t.Error("GoogleEmailVerified should be true")
	}
}

func TestSignup_InvalidGoogleIDToken(t *testing.T) {
	createCalled := false
	users := &mockUserResolver{
		createFromSignupFn: func(ctx context.Context, p model.Profile) (string, error) {
			createCalled = true
			return "x", nil
		},
	}
	svc, _ := newTestService(t, users, &mockVerifier{})

	_, err := svc.Signup(context.Background(), model.Profile{Email: "a@b.com"}, "bad", RequestMeta{})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidIDToken)
	if createCalled {
		t.Error("user should not be created")
	}
}

func TestSignup_LookupFailure(t *testing.T) {
	users := &mockUserResolver{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return nil, &model.PersistenceError{Op: "find user", Err: errors.New("down")}
		},
	}
	svc, _ := newTestService(t, users, &mockVerifier{})

	_, err := svc.Signup(context.Background(), model.Profile{Email: "a@b.com"}, "", RequestMeta{})
	var perr *model.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

// --- LoginWithGoogle ---

func TestLoginWithGoogle_ReturnsResolvedUser(t *testing.T) {
	resolved := &model.User{ID: "user-9", Email: "ann@example.com", FirstName: "Ann", GoogleSub: "sub-9"}
	users := &mockUserResolver{
		resolveExternalFn: func(ctx context.Context, ext model.ExternalIdentity) (*model.User, error) {
			if ext.Subject != "sub-9" {
				t.Errorf("subject = %q", ext.Subject)
			}
			return resolved, nil
		},
	}
	google := &mockVerifier{
		verifyFn: func(ctx context.Context, raw string) (*model.ExternalIdentity, error) {
			return &model.ExternalIdentity{Subject: "sub-9", Email: "ann@example.com", EmailVerified: true}, nil
		},
	}
	svc, repo := newTestService(t, users, google)

	res, err := svc.LoginWithGoogle(context.Background(), "tok", RequestMeta{UserAgent: "UA"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.User != resolved {
		t.Errorf("User = %+v, want resolved user", res.User)
	}
	if res.Session.Claims.UserID != "user-9" {
		t.Errorf("claims user = %q", res.Session.Claims.UserID)
	}
	if repo.count() != 1 {
		t.Errorf("sessions = %d, want 1", repo.count())
	}
}

func TestLoginWithGoogle_InvalidToken_NoSession(t *testing.T) {
	resolveCalled := false
	users := &mockUserResolver{
		resolveExternalFn: func(ctx context.Context, ext model.ExternalIdentity) (*model.User, error) {
			resolveCalled = true
			return nil, nil
		},
	}
	svc, repo := newTestService(t, users, &mockVerifier{})

	_, err := svc.LoginWithGoogle(context.Background(), "bad", RequestMeta{})
	assertAPIErrorCode(t, err, model.ErrCodeInvalidIDToken)
	if resolveCalled {
		t.Error("resolver should not be called")
	}
	if repo.count() != 0 {
		t.Errorf("sessions = %d, want 0", repo.count())
	}
}

func TestLoginWithGoogle_UpstreamFailure(t *testing.T) {
	google := &mockVerifier{
		verifyFn: func(ctx context.Context, raw string) (*model.ExternalIdentity, error) {
			return nil, &model.UpstreamError{Service: "google-certs", Err: errors.New("timeout")}
		},
	}
	svc, _ := newTestService(t, &mockUserResolver{}, google)

	_, err := svc.LoginWithGoogle(context.Background(), "tok", RequestMeta{})
	var upErr *model.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

// --- CurrentUser / Logout ---

func TestCurrentUser(t *testing.T) {
	users := &mockUserResolver{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id == "user-1" {
				return &model.User{ID: "user-1", Email: "a@b.com"}, nil
			}
			return nil, nil
		},
	}
	svc, _ := newTestService(t, users, &mockVerifier{})

	u, err := svc.CurrentUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Email != "a@b.com" {
		t.Errorf("Email = %q", u.Email)
	}

	_, err = svc.CurrentUser(context.Background(), "deleted-user")
	assertAPIErrorCode(t, err, model.ErrCodeUserNotFound)
}

func TestLogout_RevokesOnlyThatSession(t *testing.T) {
	svc, repo := newTestService(t, &mockUserResolver{}, &mockVerifier{})
	ctx := context.Background()

	first, err := svc.sessions.StartSession(ctx, SessionParams{UserID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := svc.sessions.StartSession(ctx, SessionParams{UserID: "user-1"})

	if err := svc.Logout(ctx, first.Claims.SessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.sessions.VerifySession(ctx, first.Token); err == nil {
		t.Error("logged out session should be rejected")
	}
	if _, err := svc.sessions.VerifySession(ctx, second.Token); err != nil {
		t.Errorf("other session should remain: %v", err)
	}

	if err := svc.LogoutEverywhere(ctx, "user-1"); err != nil {
		t.Fatalf("LogoutEverywhere: %v", err)
	}
	if repo.count() != 0 {
		t.Errorf("sessions = %d, want 0", repo.count())
	}
}
