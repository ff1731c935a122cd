// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package model defines the data structures that flow through an ad analysis
// run. This file defines the error taxonomy shared by the services, the
// workflow and the HTTP layer.
//
// Provider errors (auth, credit, rate limit) keep their kind all the way to
// the caller. NewErrorResponse converts any error into the structured body the
// API returns, so callers can branch on Type instead of matching messages.
package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType is the machine readable kind carried by an ErrorResponse.
type ErrorType string

const (
	ErrorTypeCreditExhausted ErrorType = "credit_exhausted"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeAuthError       ErrorType = "auth_error"
	ErrorTypeValidation      ErrorType = "validation_error"
)

// ProviderAuthError means the ads-library provider rejected our credentials,
// or no API key is configured.
type ProviderAuthError struct {
	Detail string
}

func (e *ProviderAuthError) Error() string {
	return fmt.Sprintf("ads provider authentication failed: %s", e.Detail)
}

// CreditExhaustedError means the provider account has no credits left.
type CreditExhaustedError struct {
	CreditsRemaining int
	TopupURL         string
	Detail           string
}

func (e *CreditExhaustedError) Error() string {
	return fmt.Sprintf("ads provider credits exhausted (remaining %d): %s", e.CreditsRemaining, e.Detail)
}

// RateLimitedError means the provider throttled us. RetryAfter is in seconds.
type RateLimitedError struct {
	RetryAfter int
	Detail     string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("ads provider rate limit exceeded, retry after %ds: %s", e.RetryAfter, e.Detail)
}

// ProviderError is any other provider failure: unexpected status, transport
// error or an unreadable payload.
type ProviderError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := "ads provider error"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NotFoundError is returned for lookups of things that do not exist.
type NotFoundError struct {
	Detail string
}

func (e *NotFoundError) Error() string { return e.Detail }

// NoBrandsResolvedError is fatal: none of the requested brands matched an
// ads-library page.
type NoBrandsResolvedError struct {
	BrandNames []string
}

func (e *NoBrandsResolvedError) Error() string {
	return fmt.Sprintf("no platform IDs found for the specified brands: %s", strings.Join(e.BrandNames, ", "))
}

// FetchFailedError means a remote resource (media asset, product page) could
// not be downloaded.
type FetchFailedError struct {
	URL string
	Err error
}

func (e *FetchFailedError) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.URL, e.Err)
}

func (e *FetchFailedError) Unwrap() error { return e.Err }

// AnalysisFailedError means the model call failed or returned output that
// could not be used.
type AnalysisFailedError struct {
	Subject string
	Err     error
}

func (e *AnalysisFailedError) Error() string {
	return fmt.Sprintf("analysis failed for %s: %v", e.Subject, e.Err)
}

func (e *AnalysisFailedError) Unwrap() error { return e.Err }

// ValidationError rejects a malformed request.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

// ErrorResponse is the structured body returned for a failed request.
type ErrorResponse struct {
	Type             ErrorType `json:"type"`
	Status           int       `json:"status"`
	Detail           string    `json:"detail"`
	CreditsRemaining *int      `json:"credits_remaining,omitempty"`
	TopupURL         string    `json:"topup_url,omitempty"`
	RetryAfter       *int      `json:"retry_after,omitempty"`
}

// NewErrorResponse maps an error to its response body and HTTP status.
func NewErrorResponse(err error) ErrorResponse {
	var (
		credit     *CreditExhaustedError
		rate       *RateLimitedError
		auth       *ProviderAuthError
		noBrands   *NoBrandsResolvedError
		notFound   *NotFoundError
		validation *ValidationError
	)
	switch {
	case errors.As(err, &credit):
		remaining := credit.CreditsRemaining
		return ErrorResponse{
			Type:             ErrorTypeCreditExhausted,
			Status:           http.StatusPaymentRequired,
			Detail:           "API credits exhausted. Please top up your account to continue.",
			CreditsRemaining: &remaining,
			TopupURL:         credit.TopupURL,
		}
	case errors.As(err, &rate):
		retry := rate.RetryAfter
		return ErrorResponse{
			Type:       ErrorTypeRateLimit,
			Status:     http.StatusTooManyRequests,
			Detail:     "Rate limit exceeded. Please wait before making more requests.",
			RetryAfter: &retry,
		}
	case errors.As(err, &auth):
		return ErrorResponse{Type: ErrorTypeAuthError, Status: http.StatusUnauthorized, Detail: auth.Error()}
	case errors.As(err, &noBrands):
		return ErrorResponse{Type: ErrorTypeNotFound, Status: http.StatusNotFound, Detail: noBrands.Error()}
	case errors.As(err, &notFound):
		return ErrorResponse{Type: ErrorTypeNotFound, Status: http.StatusNotFound, Detail: notFound.Error()}
	case errors.As(err, &validation):
		return ErrorResponse{Type: ErrorTypeValidation, Status: http.StatusBadRequest, Detail: validation.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse{Type: ErrorTypeServerError, Status: http.StatusInternalServerError, Detail: "run deadline exceeded before any ads were collected"}
	default:
		detail := "internal server error"
		if err != nil {
			detail = err.Error()
		}
		return ErrorResponse{Type: ErrorTypeServerError, Status: http.StatusInternalServerError, Detail: detail}
	}
}

// IsRetryable reports whether repeating the same request later may succeed.
// Validation, auth, credit and no-brand failures are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var (
		credit     *CreditExhaustedError
		auth       *ProviderAuthError
		noBrands   *NoBrandsResolvedError
		notFound   *NotFoundError
		validation *ValidationError
	)
	switch {
	case errors.As(err, &credit), errors.As(err, &auth), errors.As(err, &noBrands),
		errors.As(err, &notFound), errors.As(err, &validation):
		return false
	}
	return true
}
