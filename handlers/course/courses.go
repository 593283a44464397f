package course

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/course-market-api/model"
	"github.com/sahilchouksey/course-market-api/utils/response"
	"gorm.io/gorm"
)

// CourseHandler serves the public catalog: published courses and their
// preview content.
type CourseHandler struct {
	db *gorm.DB
}

// NewCourseHandler creates a new course handler
func NewCourseHandler(db *gorm.DB) *CourseHandler {
	return &CourseHandler{db: db}
}

// ListCourses handles GET /api/v1/courses
func (h *CourseHandler) ListCourses(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := h.db.WithContext(c.Context()).Model(&model.Course{}).
		Where("status = ?", model.CourseStatusPublished)

	if categoryID, err := strconv.ParseUint(c.Query("category_id"), 10, 32); err == nil && categoryID > 0 {
		query = query.Where("category_id = ?", uint(categoryID))
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("title ILIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return response.InternalServerError(c, "Failed to fetch courses")
	}

	var courses []model.Course
	err := query.
		Preload("Category").
		Order("enrollment_count DESC, created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&courses).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch courses")
	}

	pagination := response.CalculatePagination(page, limit, total)
	return response.Paginated(c, courses, pagination)
}

// GetCourse handles GET /api/v1/courses/:id
func (h *CourseHandler) GetCourse(c *fiber.Ctx) error {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return response.BadRequest(c, "Invalid course ID")
	}

	var course model.Course
	err = h.db.WithContext(c.Context()).
		Preload("Category").
		Preload("Lessons", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where("status = ?", model.CourseStatusPublished).
		First(&course, uint(id)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return response.NotFound(c, "Course not found")
		}
		return response.InternalServerError(c, "Failed to fetch course")
	}

	// Video URLs stay hidden on the public detail page except for previews.
	for i := range course.Lessons {
		if !course.Lessons[i].IsPreview {
			course.Lessons[i].VideoURL = ""
		}
	}

	return response.Success(c, &course)
}

// ListCategories handles GET /api/v1/courses/categories
func (h *CourseHandler) ListCategories(c *fiber.Ctx) error {
	var categories []model.Category
	err := h.db.WithContext(c.Context()).
		Order("name ASC").
		Find(&categories).Error
	if err != nil {
		return response.InternalServerError(c, "Failed to fetch categories")
	}

	return response.Success(c, categories)
}
