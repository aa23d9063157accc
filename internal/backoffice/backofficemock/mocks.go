package backofficemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/opwatch/internal/model"
)

// Client is a mock type for the backoffice.Client type.
type Client struct {
	mock.Mock
}

// TriggerScan provides a mock function with given fields: ctx, subjectID.
func (_m *Client) TriggerScan(ctx context.Context, subjectID string) (*model.ScanResult, error) {
	ret := _m.Called(ctx, subjectID)

	var r0 *model.ScanResult
	if rf, ok := ret.Get(0).(func(context.Context, string) *model.ScanResult); ok {
		r0 = rf(ctx, subjectID)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.ScanResult)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, subjectID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// StartJob provides a mock function with given fields: ctx, kind, req.
func (_m *Client) StartJob(ctx context.Context, kind model.TaskKind, req model.JobRequest) (string, error) {
	ret := _m.Called(ctx, kind, req)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, model.TaskKind, model.JobRequest) string); ok {
		r0 = rf(ctx, kind, req)
	} else {
		r0 = ret.String(0)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, model.TaskKind, model.JobRequest) error); ok {
		r1 = rf(ctx, kind, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// JobStatus provides a mock function with given fields: ctx, jobID.
func (_m *Client) JobStatus(ctx context.Context, jobID string) (*model.JobStatus, error) {
	ret := _m.Called(ctx, jobID)

	var r0 *model.JobStatus
	if rf, ok := ret.Get(0).(func(context.Context, string) *model.JobStatus); ok {
		r0 = rf(ctx, jobID)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.JobStatus)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, jobID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Statistics provides a mock function with given fields: ctx.
func (_m *Client) Statistics(ctx context.Context) (*model.Statistics, error) {
	ret := _m.Called(ctx)

	var r0 *model.Statistics
	if rf, ok := ret.Get(0).(func(context.Context) *model.Statistics); ok {
		r0 = rf(ctx)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Statistics)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

type mockConstructorTestingTNewClient interface {
	mock.TestingT
	Cleanup(func())
}

// NewClient creates a new instance of Client. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewClient(t mockConstructorTestingTNewClient) *Client {
	mock := &Client{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
