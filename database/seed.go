package database

import (
	"fmt"
	"log"
	"os"

	"github.com/sahilchouksey/course-market-api/model"
	"github.com/sahilchouksey/course-market-api/utils/auth"
	"gorm.io/gorm"
)

// Seeder handles database seeding operations
type Seeder struct {
	db *gorm.DB
}

// NewSeeder creates a new seeder instance
func NewSeeder(db *gorm.DB) *Seeder {
	return &Seeder{db: db}
}

// RunSeeds runs all seed functions against the given database
func RunSeeds(db *gorm.DB) error {
	return NewSeeder(db).SeedAll()
}

// SeedAll runs all seed functions
func (s *Seeder) SeedAll() error {
	log.Println("🌱 Starting database seeding...")

	// Run seeds in order (respecting foreign key constraints)
	if err := s.SeedAdminUser(); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}

	if err := s.SeedUsers(); err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}

	if err := s.SeedCategories(); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}

	if err := s.SeedCourses(); err != nil {
		return fmt.Errorf("failed to seed courses: %w", err)
	}

	log.Println("✅ Database seeding completed successfully!")
	return nil
}

// SeedAdminUser creates the default admin user
func (s *Seeder) SeedAdminUser() error {
	// Check if admin already exists
	var count int64
	if err := s.db.Model(&model.User{}).Where("role = ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Admin user already exists, skipping...")
		return nil
	}

	// Get admin credentials from environment variables
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		log.Println("⚠️  ADMIN_EMAIL and ADMIN_PASSWORD environment variables not set, skipping admin user creation")
		return nil
	}

	// Hash password
	passwordHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &model.User{
		Email:        adminEmail,
		PasswordHash: passwordHash,
		Name:         "System Administrator",
		Role:         model.RoleAdmin,
		TokenVersion: 0,
	}

	if err := s.db.Create(admin).Error; err != nil {
		return err
	}

	log.Printf("✅ Created admin user: %s\n", admin.Email)
	return nil
}

// SeedUsers creates a sample teacher and students
func (s *Seeder) SeedUsers() error {
	var count int64
	if err := s.db.Model(&model.User{}).Where("role <> ?", model.RoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Users already exist, skipping...")
		return nil
	}

	passwordHash, err := auth.HashPassword("changeme123")
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	users := []model.User{
		{Email: "teacher@coursemarket.local", Name: "Linh Tran", Role: model.RoleTeacher, PasswordHash: passwordHash},
		{Email: "student1@coursemarket.local", Name: "Minh Nguyen", Role: model.RoleStudent, PasswordHash: passwordHash},
		{Email: "student2@coursemarket.local", Name: "An Pham", Role: model.RoleStudent, PasswordHash: passwordHash},
	}

	if err := s.db.Create(&users).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d sample users\n", len(users))
	return nil
}

// SeedCategories creates the catalog categories
func (s *Seeder) SeedCategories() error {
	var count int64
	if err := s.db.Model(&model.Category{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Categories already exist, skipping...")
		return nil
	}

	categories := []model.Category{
		{Name: "Programming", Slug: "programming"},
		{Name: "Business", Slug: "business"},
		{Name: "Design", Slug: "design"},
		{Name: "Languages", Slug: "languages"},
	}

	if err := s.db.Create(&categories).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d categories\n", len(categories))
	return nil
}

// SeedCourses creates sample published courses with lessons, one of them free
func (s *Seeder) SeedCourses() error {
	var count int64
	if err := s.db.Model(&model.Course{}).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		log.Println("⏭️  Courses already exist, skipping...")
		return nil
	}

	var teacher model.User
	if err := s.db.Where("role = ?", model.RoleTeacher).First(&teacher).Error; err != nil {
		return fmt.Errorf("no teacher user to own sample courses: %w", err)
	}

	var programming model.Category
	if err := s.db.Where("slug = ?", "programming").First(&programming).Error; err != nil {
		return err
	}

	courses := []model.Course{
		{
			Title:       "Go Backend Development",
			Slug:        "go-backend-development",
			Description: "Build production web services in Go, from routing to deployment.",
			Price:       500000,
			Status:      model.CourseStatusPublished,
			TeacherID:   teacher.ID,
			CategoryID:  &programming.ID,
			Lessons: []model.Lesson{
				{Title: "Introduction", Position: 1, Duration: 12, IsPreview: true},
				{Title: "HTTP servers", Position: 2, Duration: 25},
				{Title: "Working with PostgreSQL", Position: 3, Duration: 32},
				{Title: "Authentication", Position: 4, Duration: 28},
				{Title: "Deployment", Position: 5, Duration: 19},
			},
		},
		{
			Title:         "SQL for Analysts",
			Slug:          "sql-for-analysts",
			Description:   "Practical SQL with realistic datasets.",
			Price:         800000,
			DiscountPrice: 650000,
			Status:        model.CourseStatusPublished,
			TeacherID:     teacher.ID,
			CategoryID:    &programming.ID,
			Lessons: []model.Lesson{
				{Title: "SELECT basics", Position: 1, Duration: 15, IsPreview: true},
				{Title: "Joins", Position: 2, Duration: 22},
				{Title: "Aggregations", Position: 3, Duration: 18},
			},
		},
		{
			Title:       "Getting Started With Programming",
			Slug:        "getting-started-with-programming",
			Description: "A free orientation course for complete beginners.",
			Price:       0,
			Status:      model.CourseStatusPublished,
			TeacherID:   teacher.ID,
			CategoryID:  &programming.ID,
			Lessons: []model.Lesson{
				{Title: "What is code?", Position: 1, Duration: 10, IsPreview: true},
				{Title: "Your first program", Position: 2, Duration: 14},
			},
		},
	}

	if err := s.db.Create(&courses).Error; err != nil {
		return err
	}

	log.Printf("✅ Created %d sample courses\n", len(courses))
	return nil
}
