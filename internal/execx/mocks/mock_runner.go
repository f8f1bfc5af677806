package mocks

import (
	"context"

	"docuflow/internal/execx"

	"github.com/stretchr/testify/mock"
)

type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) (execx.Result, error) {
	callArgs := m.Called(ctx, name, args)
	return callArgs.Get(0).(execx.Result), callArgs.Error(1)
}

func (m *MockRunner) Interactive(ctx context.Context, name string, args ...string) error {
	callArgs := m.Called(ctx, name, args)
	return callArgs.Error(0)
}
