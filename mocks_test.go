package access_test

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"sync"

	"github.com/enoveri/go-access"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
)

// MockProfileStore implements access.ProfileStore
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetByID(ctx context.Context, id string) (*access.Profile, error) {
	args := m.Called(ctx, id)
	profile, _ := args.Get(0).(*access.Profile)
	return profile, args.Error(1)
}

func (m *MockProfileStore) GetByEmail(ctx context.Context, email string) (*access.Profile, error) {
	args := m.Called(ctx, email)
	profile, _ := args.Get(0).(*access.Profile)
	return profile, args.Error(1)
}

func (m *MockProfileStore) ReassignID(ctx context.Context, email, oldID, newID string) error {
	args := m.Called(ctx, email, oldID, newID)
	return args.Error(0)
}

// MockIdentityStore implements access.IdentityStore
type MockIdentityStore struct {
	mock.Mock

	mu          sync.Mutex
	subscribers []func(access.AuthChange)
}

func (m *MockIdentityStore) Authenticate(ctx context.Context, email, password string) (*access.AuthIdentity, error) {
	args := m.Called(ctx, email, password)
	identity, _ := args.Get(0).(*access.AuthIdentity)
	return identity, args.Error(1)
}

func (m *MockIdentityStore) CurrentIdentity(ctx context.Context) (*access.AuthIdentity, error) {
	args := m.Called(ctx)
	identity, _ := args.Get(0).(*access.AuthIdentity)
	return identity, args.Error(1)
}

func (m *MockIdentityStore) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityStore) Subscribe(fn func(access.AuthChange)) func() {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
	return func() {}
}

// Emit pushes a provider event to subscribers, simulating an auth change
// originating outside SignIn/SignOut.
func (m *MockIdentityStore) Emit(change access.AuthChange) {
	m.mu.Lock()
	fns := append([]func(access.AuthChange){}, m.subscribers...)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// stubReconciler returns canned sessions, optionally blocking until released
// so tests can observe in-flight resolution.
type stubReconciler struct {
	mu      sync.Mutex
	calls   int
	session *access.ResolvedSession
	err     error
	block   chan struct{}
	fn      func(identity access.AuthIdentity) (*access.ResolvedSession, error)
}

func (s *stubReconciler) Resolve(ctx context.Context, identity access.AuthIdentity) (*access.ResolvedSession, error) {
	s.mu.Lock()
	s.calls++
	block := s.block
	fn := s.fn
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fn != nil {
		return fn(identity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.err
}

func (s *stubReconciler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// captureLogger records formatted log lines per level.
type captureLogger struct {
	mu    sync.Mutex
	lines map[string][]string
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{lines: map[string][]string{}}
}

func (c *captureLogger) log(level, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines[level] = append(c.lines[level], fmt.Sprintf(format, args...))
}

func (c *captureLogger) Debug(format string, args ...any) { c.log("debug", format, args...) }
func (c *captureLogger) Info(format string, args ...any)  { c.log("info", format, args...) }
func (c *captureLogger) Warn(format string, args ...any)  { c.log("warn", format, args...) }
func (c *captureLogger) Error(format string, args ...any) { c.log("error", format, args...) }

func (c *captureLogger) count(level string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines[level])
}

// captureSink records every activity event it sees.
type captureSink struct {
	mu     sync.Mutex
	events []access.ActivityEvent
	err    error
}

func (c *captureSink) Record(ctx context.Context, event access.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureSink) byType(kind access.ActivityEventType) []access.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []access.ActivityEvent
	for _, event := range c.events {
		if event.EventType == kind {
			out = append(out, event)
		}
	}
	return out
}

// MockConfig implements access.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetLoginRoute() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetDeniedRoute() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetRejectedRouteKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetRejectedRouteDefault() string {
	args := m.Called()
	return args.String(0)
}

func newMockConfig() *MockConfig {
	cfg := new(MockConfig)
	cfg.On("GetLoginRoute").Return("/login")
	cfg.On("GetDeniedRoute").Return("/denied")
	cfg.On("GetRejectedRouteKey").Return("redirect_to")
	cfg.On("GetRejectedRouteDefault").Return("/")
	return cfg
}

// MockContext mocks router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	vals, _ := args.Get(0).([]string)
	return vals
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	merged, _ := args.Get(0).(map[string]any)
	return merged
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	header, _ := args.Get(0).(*multipart.FileHeader)
	return header, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	params, _ := args.Get(0).(map[string]string)
	return params
}
