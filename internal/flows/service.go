package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Verify.ParseAccess != nil
}

func (s Service) Register(ctx context.Context, in RegisterInput) RegisterResult {
	return RunRegister(ctx, in, s.deps.Register)
}

func (s Service) Login(ctx context.Context, req LoginRequest) LoginResult {
	return RunLogin(ctx, req, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, raw string) RefreshResult {
	return RunRefresh(ctx, raw, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, accountID string) (int, error) {
	return RunLogout(ctx, accountID, s.deps.Logout)
}

func (s Service) ChangeRole(ctx context.Context, req ChangeRoleRequest) ChangeRoleResult {
	return RunChangeRole(ctx, req, s.deps.ChangeRole)
}

func (s Service) Verify(token string) VerifyResult {
	return RunVerify(token, s.deps.Verify)
}
