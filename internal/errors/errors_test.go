package errors

import (
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Structured Errors", func() {
	Describe("AppError", func() {
		Context("basic error creation", func() {
			It("should create error with correct properties", func() {
				err := New(ErrorTypeValidation, "test message")

				Expect(err.Type).To(Equal(ErrorTypeValidation))
				Expect(err.Message).To(Equal("test message"))
				Expect(err.StatusCode).To(Equal(http.StatusBadRequest))
				Expect(err.Details).To(BeEmpty())
				Expect(err.Cause).To(BeNil())
			})

			It("should implement error interface correctly", func() {
				err := New(ErrorTypeValidation, "test message")

				Expect(err.Error()).To(Equal("validation: test message"))
			})

			It("should include details in error string when present", func() {
				err := New(ErrorTypeValidation, "test message").WithDetails("extra info")

				Expect(err.Error()).To(Equal("validation: test message (extra info)"))
			})
		})

		Context("error wrapping", func() {
			It("should wrap underlying error", func() {
				originalErr := errors.New("original error")
				wrappedErr := Wrap(originalErr, ErrorTypeDatabase, "operation failed")

				Expect(wrappedErr.Type).To(Equal(ErrorTypeDatabase))
				Expect(wrappedErr.Message).To(Equal("operation failed"))
				Expect(wrappedErr.Cause).To(Equal(originalErr))
				Expect(wrappedErr.Unwrap()).To(Equal(originalErr))
			})

			It("should format wrapped error with arguments", func() {
				originalErr := errors.New("connection refused")
				wrappedErr := Wrapf(originalErr, ErrorTypeNetwork, "failed to connect to %s:%d", "localhost", 5432)

				Expect(wrappedErr.Message).To(Equal("failed to connect to localhost:5432"))
				Expect(wrappedErr.Cause).To(Equal(originalErr))
			})
		})

		Context("adding details", func() {
			It("should add details to existing error", func() {
				err := New(ErrorTypeAuth, "authentication failed")
				detailedErr := err.WithDetails("invalid token")

				Expect(detailedErr.Details).To(Equal("invalid token"))
				Expect(detailedErr).To(BeIdenticalTo(err))
			})

			It("should add formatted details", func() {
				err := New(ErrorTypeAuth, "authentication failed")
				detailedErr := err.WithDetailsf("user %s, attempt %d", "john", 3)

				Expect(detailedErr.Details).To(Equal("user john, attempt 3"))
			})
		})
	})

	Describe("HTTP Status Code Mapping", func() {
		It("should map error types to correct HTTP status codes", func() {
			testCases := []struct {
				errorType  ErrorType
				statusCode int
			}{
				{ErrorTypeValidation, http.StatusBadRequest},
				{ErrorTypeAuth, http.StatusUnauthorized},
				{ErrorTypeNotFound, http.StatusNotFound},
				{ErrorTypeConflict, http.StatusConflict},
				{ErrorTypeTimeout, http.StatusRequestTimeout},
				{ErrorTypeRateLimit, http.StatusTooManyRequests},
				{ErrorTypeDatabase, http.StatusInternalServerError},
				{ErrorTypeNetwork, http.StatusInternalServerError},
				{ErrorTypeInternal, http.StatusInternalServerError},
				{ErrorTypePlaybookNotFound, http.StatusNotFound},
				{ErrorTypeCircuitOpen, http.StatusServiceUnavailable},
				{ErrorTypeActionDisabled, http.StatusForbidden},
				{ErrorTypeHealthCheckTimeout, http.StatusGatewayTimeout},
			}

			for _, tc := range testCases {
				err := New(tc.errorType, "test message")
				Expect(err.StatusCode).To(Equal(tc.statusCode))
			}
		})
	})

	Describe("Predefined Error Constructors", func() {
		It("should create validation error", func() {
			err := NewValidationError("invalid input")

			Expect(err.Type).To(Equal(ErrorTypeValidation))
			Expect(err.Message).To(Equal("invalid input"))
		})

		It("should create database error", func() {
			originalErr := errors.New("connection lost")
			err := NewDatabaseError("query", originalErr)

			Expect(err.Type).To(Equal(ErrorTypeDatabase))
			Expect(err.Message).To(ContainSubstring("database operation failed: query"))
			Expect(err.Cause).To(Equal(originalErr))
		})

		It("should create not found error", func() {
			err := NewNotFoundError("cluster")

			Expect(err.Type).To(Equal(ErrorTypeNotFound))
			Expect(err.Message).To(Equal("cluster not found"))
		})

		It("should create playbook-not-found error", func() {
			err := NewPlaybookNotFound("DatabricksUnknownError")

			Expect(err.Type).To(Equal(ErrorTypePlaybookNotFound))
			Expect(err.Message).To(ContainSubstring("DatabricksUnknownError"))
		})

		It("should create circuit-open error", func() {
			err := NewCircuitOpen("DatabricksJobExecutionError:job-1")

			Expect(err.Type).To(Equal(ErrorTypeCircuitOpen))
			Expect(err.Message).To(ContainSubstring("job-1"))
		})

		It("should create action-disabled error", func() {
			err := NewActionDisabled("restart_cluster")

			Expect(err.Type).To(Equal(ErrorTypeActionDisabled))
		})

		It("should create action-failed error wrapping the adapter cause", func() {
			cause := errors.New("rate limited")
			err := NewActionFailed("retry_job", "Throttled", cause)

			Expect(err.Type).To(Equal(ErrorTypeActionFailed))
			Expect(err.Cause).To(Equal(cause))
		})

		It("should create health-check-timeout error", func() {
			err := NewHealthCheckTimeout("run-123")

			Expect(err.Type).To(Equal(ErrorTypeHealthCheckTimeout))
		})

		It("should create rollback-failed error", func() {
			cause := errors.New("snapshot API unavailable")
			err := NewRollbackFailed("cluster-1", cause)

			Expect(err.Type).To(Equal(ErrorTypeRollbackFailed))
			Expect(err.Cause).To(Equal(cause))
		})
	})

	Describe("Error Type Checking", func() {
		It("should correctly identify error types", func() {
			validationErr := NewValidationError("test")
			authErr := NewAuthError("test")

			Expect(IsType(validationErr, ErrorTypeValidation)).To(BeTrue())
			Expect(IsType(validationErr, ErrorTypeAuth)).To(BeFalse())
			Expect(IsType(authErr, ErrorTypeAuth)).To(BeTrue())
		})

		It("should handle non-AppError types", func() {
			regularErr := errors.New("regular error")

			Expect(IsType(regularErr, ErrorTypeValidation)).To(BeFalse())
			Expect(GetType(regularErr)).To(Equal(ErrorTypeInternal))
		})

		It("should get correct status codes", func() {
			validationErr := NewValidationError("test")
			regularErr := errors.New("regular error")

			Expect(GetStatusCode(validationErr)).To(Equal(http.StatusBadRequest))
			Expect(GetStatusCode(regularErr)).To(Equal(http.StatusInternalServerError))
		})
	})

	Describe("Safe Error Messages", func() {
		It("should return safe messages for different error types", func() {
			Expect(SafeErrorMessage(NewValidationError("specific validation message"))).To(Equal("specific validation message"))
			Expect(SafeErrorMessage(New(ErrorTypeNotFound, "internal details"))).To(Equal(ErrorMessages.ResourceNotFound))
			Expect(SafeErrorMessage(New(ErrorTypeAuth, "internal details"))).To(Equal(ErrorMessages.AuthenticationFailed))
			Expect(SafeErrorMessage(New(ErrorTypeTimeout, "internal details"))).To(Equal(ErrorMessages.OperationTimeout))
			Expect(SafeErrorMessage(New(ErrorTypeRateLimit, "internal details"))).To(Equal(ErrorMessages.RateLimitExceeded))
			Expect(SafeErrorMessage(New(ErrorTypeConflict, "internal details"))).To(Equal(ErrorMessages.ConcurrentModification))
			Expect(SafeErrorMessage(New(ErrorTypeDatabase, "internal details"))).To(Equal("An internal error occurred"))
		})

		It("should return generic message for regular errors", func() {
			regularErr := errors.New("internal panic")
			Expect(SafeErrorMessage(regularErr)).To(Equal("An unexpected error occurred"))
		})
	})

	Describe("Logging Fields", func() {
		It("should generate structured logging fields", func() {
			originalErr := errors.New("connection failed")
			appErr := Wrapf(originalErr, ErrorTypeDatabase, "query failed").
				WithDetails("table: users")

			fields := LogFields(appErr)

			Expect(fields).To(HaveKey("error"))
			Expect(fields).To(HaveKey("error_type"))
			Expect(fields).To(HaveKey("status_code"))
			Expect(fields).To(HaveKey("error_details"))
			Expect(fields).To(HaveKey("underlying_error"))

			Expect(fields["error_type"]).To(Equal("database"))
			Expect(fields["status_code"]).To(Equal(http.StatusInternalServerError))
			Expect(fields["error_details"]).To(Equal("table: users"))
			Expect(fields["underlying_error"]).To(Equal("connection failed"))
		})

		It("should handle simple AppError without details", func() {
			err := NewValidationError("invalid input")
			fields := LogFields(err)

			Expect(fields).To(HaveKey("error"))
			Expect(fields).To(HaveKey("error_type"))
			Expect(fields).To(HaveKey("status_code"))
			Expect(fields).NotTo(HaveKey("error_details"))
			Expect(fields).NotTo(HaveKey("underlying_error"))
		})

		It("should handle regular errors", func() {
			err := errors.New("regular error")
			fields := LogFields(err)

			Expect(fields).To(HaveKey("error"))
			Expect(fields).NotTo(HaveKey("error_type"))
		})
	})

	Describe("Error Chaining", func() {
		It("should handle empty error list", func() {
			err := Chain()
			Expect(err).To(BeNil())
		})

		It("should handle single error", func() {
			originalErr := errors.New("single error")
			err := Chain(originalErr)

			Expect(err).To(Equal(originalErr))
		})

		It("should filter nil errors", func() {
			err1 := errors.New("error 1")
			err2 := errors.New("error 2")

			err := Chain(err1, nil, err2, nil)

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("error 1"))
			Expect(err.Error()).To(ContainSubstring("error 2"))
		})

		It("should chain multiple errors with an arrow separator", func() {
			err1 := errors.New("primary action failed")
			err2 := errors.New("fallback action failed")

			chainedErr := Chain(err1, err2)

			Expect(chainedErr.Error()).To(ContainSubstring(" -> "))
			Expect(chainedErr.Error()).To(ContainSubstring("primary action failed"))
			Expect(chainedErr.Error()).To(ContainSubstring("fallback action failed"))
		})

		It("should return nil when all errors are nil", func() {
			err := Chain(nil, nil, nil)
			Expect(err).To(BeNil())
		})
	})
})
