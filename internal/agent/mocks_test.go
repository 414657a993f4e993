package agent

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/tablewise/tablepilot/api/schemas"
)

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface used by CandidatePlanner.
type MockLLMClient struct {
	mock.Mock
}

// Generate mocks the oracle generation call.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// -- Observer Mock --

// MockObserver mocks the Observer interface.
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) Observe(ctx context.Context) (schemas.PageState, error) {
	args := m.Called(ctx)
	return args.Get(0).(schemas.PageState), args.Error(1)
}

// -- Environment Mock --

// MockEnvironment mocks the queryable browser capability consumed by
// ActionResolver.
type MockEnvironment struct {
	mock.Mock
}

func (m *MockEnvironment) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockEnvironment) Query(ctx context.Context, spec schemas.TargetSpec) ([]Element, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Element), args.Error(1)
}

func (m *MockEnvironment) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockEnvironment) Scroll(ctx context.Context, target string) error {
	args := m.Called(ctx, target)
	return args.Error(0)
}

func (m *MockEnvironment) AwaitNetworkIdle(ctx context.Context, timeout time.Duration) bool {
	args := m.Called(ctx, timeout)
	return args.Bool(0)
}

func (m *MockEnvironment) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// fakeElement is a plain stub for the Element capability; interaction
// outcomes are scripted through its fields.
type fakeElement struct {
	visible  bool
	enabled  bool
	desc     string
	clickErr error
	fillErr  error
	selErr   error

	clicked  bool
	filled   string
	selected string
}

func (f *fakeElement) Visible() bool    { return f.visible }
func (f *fakeElement) Enabled() bool    { return f.enabled }
func (f *fakeElement) Describe() string { return f.desc }

func (f *fakeElement) Click(context.Context) error {
	f.clicked = true
	return f.clickErr
}

func (f *fakeElement) Fill(_ context.Context, value string) error {
	f.filled = value
	return f.fillErr
}

func (f *fakeElement) SelectOption(_ context.Context, value string) error {
	f.selected = value
	return f.selErr
}

// -- Loop collaborator mocks --

// MockPlanner mocks the Planner interface for controller tests.
type MockPlanner struct {
	mock.Mock
}

func (m *MockPlanner) Plan(ctx context.Context, goal string, page schemas.PageState, memory *schemas.Memory) (schemas.Decision, error) {
	args := m.Called(ctx, goal, page, memory)
	return args.Get(0).(schemas.Decision), args.Error(1)
}

// MockResolver mocks the Resolver interface for controller tests.
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Execute(ctx context.Context, action schemas.ActionDescriptor) schemas.ExecutionResult {
	args := m.Called(ctx, action)
	return args.Get(0).(schemas.ExecutionResult)
}

// MockVerifier mocks the Verifier interface for controller tests.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(result schemas.ExecutionResult, page schemas.PageState) schemas.StepOutcome {
	args := m.Called(result, page)
	return args.Get(0).(schemas.StepOutcome)
}

// MockRecorder mocks the Recorder interface for controller tests.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordStep(ctx context.Context, rec schemas.StepRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}
