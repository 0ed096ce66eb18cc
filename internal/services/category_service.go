package services

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "tally/internal/errors"
	"tally/internal/models"
	"tally/internal/pagination"
)

type categorySeed struct {
	name  string
	color string
	icon  string
}

var defaultExpenseCategories = []categorySeed{
	{"Food & Dining", "#EF4444", "utensils"},
	{"Transportation", "#3B82F6", "car"},
	{"Shopping", "#8B5CF6", "shopping-bag"},
	{"Entertainment", "#F59E0B", "film"},
	{"Bills & Utilities", "#10B981", "zap"},
	{"Healthcare", "#F97316", "heart"},
	{"Other", "#6B7280", "more-horizontal"},
}

var defaultIncomeCategories = []categorySeed{
	{"Salary", "#059669", "briefcase"},
	{"Freelance", "#DC2626", "laptop"},
	{"Investment", "#7C3AED", "trending-up"},
	{"Other Income", "#6B7280", "plus-circle"},
}

const (
	balanceAdjustmentCategory = "Balance Adjustment"
	balanceAdjustmentColor    = "#6B7280"
	balanceAdjustmentIcon     = "settings"
)

// categoryService handles category-related business logic.
type categoryService struct {
	db *gorm.DB
}

// NewCategoryService creates a new CategoryServicer.
func NewCategoryService(db *gorm.DB) CategoryServicer {
	return &categoryService{db: db}
}

// CreateDefaultCategories seeds the standard income and expense categories
// for a user. Existing (name, type) pairs are left untouched, so calling it
// again is a no-op.
func (s *categoryService) CreateDefaultCategories(userID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, seed := range defaultExpenseCategories {
			if _, err := getOrCreateCategory(tx, userID, seed.name, models.CategoryTypeExpense, seed.color, seed.icon, true); err != nil {
				return err
			}
		}
		for _, seed := range defaultIncomeCategories {
			if _, err := getOrCreateCategory(tx, userID, seed.name, models.CategoryTypeIncome, seed.color, seed.icon, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// getOrCreateCategory returns the user's category with the given name and
// type, creating it with the supplied attributes when missing.
func getOrCreateCategory(tx *gorm.DB, userID, name string, categoryType models.CategoryType, color, icon string, isDefault bool) (*models.Category, error) {
	category := models.Category{
		UserID:    userID,
		Name:      name,
		Type:      categoryType,
		Color:     color,
		Icon:      icon,
		IsDefault: isDefault,
	}
	err := tx.Where(models.Category{UserID: userID, Name: name, Type: categoryType}).
		FirstOrCreate(&category).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

// CreateCategory creates a new category
func (s *categoryService) CreateCategory(userID, name string, categoryType models.CategoryType, color, icon string) (*models.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name is required")
	}

	exists, err := s.nameTaken(userID, name, categoryType, "")
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.ErrDuplicateCategory
	}

	category := &models.Category{
		UserID: userID,
		Name:   name,
		Type:   categoryType,
		Color:  defaultString(color, "#3B82F6"),
		Icon:   defaultString(icon, "circle"),
	}

	if err := s.db.Create(category).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return category, nil
}

func (s *categoryService) nameTaken(userID, name string, categoryType models.CategoryType, excludeID string) (bool, error) {
	q := s.db.Model(&models.Category{}).Where("user_id = ? AND name = ? AND type = ?", userID, name, categoryType)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count > 0, nil
}

// GetUserCategories retrieves a paginated list of categories for a user, each
// with its transaction count.
func (s *categoryService) GetUserCategories(userID string, page pagination.PageRequest, filter CategoryFilter) (*pagination.PageResponse[models.Category], error) {
	page.Defaults()

	base := s.db.Model(&models.Category{}).Where("user_id = ?", userID)
	if filter.Type != nil {
		base = base.Where("type = ?", *filter.Type)
	}
	if filter.Search != "" {
		base = base.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var categories []models.Category
	if err := base.Order("type, name").Scopes(pagination.Paginate(page)).Find(&categories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := s.attachTransactionCounts(categories); err != nil {
		return nil, err
	}

	result := pagination.NewPageResponse(categories, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetCategoriesByType returns all of the user's categories split by type.
func (s *categoryService) GetCategoriesByType(userID string) (*CategoriesByType, error) {
	var categories []models.Category
	if err := s.db.Where("user_id = ?", userID).Order("name").Find(&categories).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := &CategoriesByType{Income: []models.Category{}, Expense: []models.Category{}}
	for _, c := range categories {
		switch c.Type {
		case models.CategoryTypeIncome:
			result.Income = append(result.Income, c)
		case models.CategoryTypeExpense:
			result.Expense = append(result.Expense, c)
		}
	}
	return result, nil
}

func (s *categoryService) attachTransactionCounts(categories []models.Category) error {
	if len(categories) == 0 {
		return nil
	}
	ids := make([]string, len(categories))
	for i := range categories {
		ids[i] = categories[i].ID
	}

	type row struct {
		CategoryID string
		Count      int64
	}
	var rows []row
	if err := s.db.Model(&models.Transaction{}).
		Select("category_id, COUNT(*) AS count").
		Where("category_id IN ?", ids).
		Group("category_id").
		Scan(&rows).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.CategoryID] = r.Count
	}
	for i := range categories {
		categories[i].TransactionCount = counts[categories[i].ID]
	}
	return nil
}

// GetCategoryByID retrieves a category by ID for a specific user
func (s *categoryService) GetCategoryByID(userID, categoryID string) (*models.Category, error) {
	var category models.Category
	if err := s.db.Where("id = ? AND user_id = ?", categoryID, userID).First(&category).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrCategoryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &category, nil
}

func (s *categoryService) transactionCount(categoryID string) (int64, error) {
	var count int64
	if err := s.db.Model(&models.Transaction{}).Where("category_id = ?", categoryID).Count(&count).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return count, nil
}

// UpdateCategory updates an existing category. The type can only change while
// no transaction references the category.
func (s *categoryService) UpdateCategory(userID, categoryID string, fields CategoryUpdateFields) (*models.Category, error) {
	category, err := s.GetCategoryByID(userID, categoryID)
	if err != nil {
		return nil, err
	}

	name := category.Name
	categoryType := category.Type
	updates := make(map[string]interface{})

	if fields.Name != nil {
		trimmed := strings.TrimSpace(*fields.Name)
		if trimmed == "" {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "category name cannot be empty")
		}
		name = trimmed
		updates["name"] = trimmed
	}
	if fields.Type != nil && *fields.Type != category.Type {
		count, err := s.transactionCount(categoryID)
		if err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, apperrors.WithMessage(apperrors.ErrCategoryInUse, "cannot change the type of a category that has transactions")
		}
		categoryType = *fields.Type
		updates["type"] = categoryType
	}
	if fields.Color != nil && *fields.Color != "" {
		updates["color"] = *fields.Color
	}
	if fields.Icon != nil && *fields.Icon != "" {
		updates["icon"] = *fields.Icon
	}

	if name != category.Name || categoryType != category.Type {
		taken, err := s.nameTaken(userID, name, categoryType, categoryID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperrors.ErrDuplicateCategory
		}
	}

	if len(updates) > 0 {
		if err := s.db.Model(category).Updates(updates).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return s.GetCategoryByID(userID, categoryID)
}

// DeleteCategory deletes a category that no transaction references.
func (s *categoryService) DeleteCategory(userID, categoryID string) error {
	category, err := s.GetCategoryByID(userID, categoryID)
	if err != nil {
		return err
	}

	count, err := s.transactionCount(categoryID)
	if err != nil {
		return err
	}
	if count > 0 {
		return apperrors.ErrCategoryInUse
	}

	if err := s.db.Delete(category).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}
