package enrollment

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-market-api/services"
	"github.com/sahilchouksey/course-market-api/utils/middleware"
	"github.com/sahilchouksey/course-market-api/utils/response"
	"github.com/sahilchouksey/course-market-api/utils/validation"
	"gorm.io/gorm"
)

// EnrollmentHandler handles enrollment reads and the free-course enroll path.
// Paid enrollments never come through here; they are materialized by the
// payment ledger when a payment completes.
type EnrollmentHandler struct {
	validator   *validation.Validator
	enrollments *services.EnrollmentService
}

// NewEnrollmentHandler creates a new enrollment handler
func NewEnrollmentHandler(enrollments *services.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{
		validator:   validation.NewValidator(),
		enrollments: enrollments,
	}
}

// EnrollRequest represents the request body for a free enrollment
type EnrollRequest struct {
	CourseID uint `json:"course_id" validate:"required,min=1"`
}

// Enroll handles POST /api/v1/enrollments (free courses only)
func (h *EnrollmentHandler) Enroll(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	var req EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, err)
	}

	enrollment, err := h.enrollments.Enroll(c.Context(), user.ID, req.CourseID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCourseNotFound):
			return response.NotFound(c, "Course not found")
		case errors.Is(err, services.ErrCourseNotPurchasable):
			return response.BadRequest(c, "Course is not open for enrollment")
		case errors.Is(err, services.ErrCourseNotFree):
			return response.BadRequest(c, "Course requires payment before enrollment")
		case errors.Is(err, services.ErrAlreadyEnrolled):
			return response.Conflict(c, "Already enrolled in this course")
		case errors.Is(err, services.ErrLockTimeout):
			return response.ServiceUnavailable(c, "Enrollment is being processed, please retry")
		default:
			return response.InternalServerError(c, "Failed to enroll")
		}
	}

	return response.Created(c, enrollment)
}

// MyEnrollments handles GET /api/v1/enrollments/my-enrollments
func (h *EnrollmentHandler) MyEnrollments(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	enrollments, err := h.enrollments.FindByStudent(c.Context(), user.ID)
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch enrollments")
	}

	return response.Success(c, enrollments)
}

// GetEnrollment handles GET /api/v1/enrollments/:id
func (h *EnrollmentHandler) GetEnrollment(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok || user == nil {
		return response.Unauthorized(c, "User not authenticated")
	}

	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid enrollment ID")
	}

	enrollment, err := h.enrollments.FindOne(c.Context(), uint(id), user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Enrollment not found")
		}
		return response.InternalServerError(c, "Failed to fetch enrollment")
	}

	return response.Success(c, enrollment)
}
