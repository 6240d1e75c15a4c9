package enums

import "fmt"

// MenuCategory groups menu items on the public menu.
type MenuCategory string

const (
	MenuCategoryPizza   MenuCategory = "pizza"
	MenuCategoryBurgers MenuCategory = "burgers"
	MenuCategorySides   MenuCategory = "sides"
	MenuCategoryDrinks  MenuCategory = "drinks"
)

var validMenuCategories = []MenuCategory{
	MenuCategoryPizza,
	MenuCategoryBurgers,
	MenuCategorySides,
	MenuCategoryDrinks,
}

func (c MenuCategory) IsValid() bool {
	for _, candidate := range validMenuCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

func ParseMenuCategory(value string) (MenuCategory, error) {
	for _, candidate := range validMenuCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid menu category %q", value)
}
