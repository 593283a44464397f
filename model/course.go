package model

import (
	"time"

	"gorm.io/gorm"
)

// CourseStatus controls whether a course is visible and purchasable.
type CourseStatus string

const (
	CourseStatusDraft     CourseStatus = "draft"
	CourseStatusPending   CourseStatus = "pending"
	CourseStatusPublished CourseStatus = "published"
	CourseStatusArchived  CourseStatus = "archived"
)

// Category groups courses for catalog browsing.
type Category struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Slug      string         `gorm:"uniqueIndex;not null" json:"slug"`

	Courses []Course `gorm:"foreignKey:CategoryID" json:"courses,omitempty"`
}

// TableName specifies the table name for Category
func (Category) TableName() string {
	return "categories"
}

// Course is a sellable course in the catalog. Prices are integer VND;
// DiscountPrice, when set above zero, is the effective price.
type Course struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Title         string       `gorm:"not null" json:"title"`
	Slug          string       `gorm:"uniqueIndex;not null" json:"slug"`
	Description   string       `gorm:"type:text" json:"description"`
	Thumbnail     string       `json:"thumbnail,omitempty"`
	Price         int64        `gorm:"not null;default:0" json:"price"`
	DiscountPrice int64        `gorm:"not null;default:0" json:"discount_price"`
	Status        CourseStatus `gorm:"type:varchar(20);not null;default:'draft';index" json:"status"`
	Duration      int          `gorm:"default:0" json:"duration"` // total minutes

	EnrollmentCount int `gorm:"default:0" json:"enrollment_count"`

	TeacherID  uint  `gorm:"not null;index" json:"teacher_id"`
	CategoryID *uint `gorm:"index" json:"category_id"`

	Teacher  User      `gorm:"foreignKey:TeacherID" json:"teacher,omitempty"`
	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Lessons  []Lesson  `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"lessons,omitempty"`
}

// TableName specifies the table name for Course
func (Course) TableName() string {
	return "courses"
}

// EffectivePrice is the amount a buyer is charged right now: the discount
// price when one is set, otherwise the list price.
func (c *Course) EffectivePrice() int64 {
	if c.DiscountPrice > 0 {
		return c.DiscountPrice
	}
	return c.Price
}

// IsPurchasable reports whether the course can accept new payments or
// enrollments.
func (c *Course) IsPurchasable() bool {
	return c.Status == CourseStatusPublished
}

// Lesson is one unit of course content. Ordering within a course follows
// Position.
type Lesson struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	CourseID  uint   `gorm:"not null;index" json:"course_id"`
	Title     string `gorm:"not null" json:"title"`
	Position  int    `gorm:"not null;default:0" json:"position"`
	Duration  int    `gorm:"default:0" json:"duration"` // minutes
	VideoURL  string `json:"video_url,omitempty"`
	IsPreview bool   `gorm:"default:false" json:"is_preview"`

	Course Course `gorm:"foreignKey:CourseID;constraint:OnDelete:CASCADE" json:"-"`
}

// TableName specifies the table name for Lesson
func (Lesson) TableName() string {
	return "lessons"
}
