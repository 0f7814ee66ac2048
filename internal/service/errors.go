package service

import (
	"fmt"
)

type ErrResourceNotFound struct {
	error
}

func NewErrResourceNotFound(id string, resourceType string) *ErrResourceNotFound {
	return &ErrResourceNotFound{fmt.Errorf("%s %s not found", resourceType, id)}
}

func NewErrReportJobNotFound(id string) *ErrResourceNotFound {
	return NewErrResourceNotFound(id, "report job")
}

type ErrInvalidRequest struct {
	error
}

func NewErrInvalidRequest(message string) *ErrInvalidRequest {
	return &ErrInvalidRequest{fmt.Errorf("bad request: %s", message)}
}

func NewErrInvalidReportType(reportType string) *ErrInvalidRequest {
	return NewErrInvalidRequest(fmt.Sprintf("unknown report type %q", reportType))
}

type ErrReportJobForbidden struct {
	error
}

func NewErrReportJobForbidden(id string) *ErrReportJobForbidden {
	return &ErrReportJobForbidden{fmt.Errorf("forbidden to access report job %s", id)}
}

type ErrDispatchFailed struct {
	error
	JobID string
}

func NewErrDispatchFailed(id string, cause error) *ErrDispatchFailed {
	return &ErrDispatchFailed{error: fmt.Errorf("failed to schedule report job %s: %w", id, cause), JobID: id}
}
