package models

// Category is a node of the two-level service taxonomy. Top-level categories
// have an empty ParentID; subcategories carry the pricing baseline.
type Category struct {
	ID                string `bson:"id" json:"id"`
	ParentID          string `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	Name              string `bson:"name" json:"name"`
	Icon              string `bson:"icon,omitempty" json:"icon,omitempty"`
	RequiresPhotos    bool   `bson:"requires_photos" json:"requires_photos"`
	RequiresWorkCode  bool   `bson:"requires_work_code" json:"requires_work_code"`
	BaselinePrice     int64  `bson:"baseline_price,omitempty" json:"baseline_price,omitempty"`         // Minor units
	MinimumPercentage int    `bson:"minimum_percentage,omitempty" json:"minimum_percentage,omitempty"` // Of BaselinePrice
}

func (c *Category) IsTopLevel() bool {
	return c.ParentID == ""
}

// HasPriceFloor reports whether bids on this subcategory are subject to a minimum.
func (c *Category) HasPriceFloor() bool {
	return c.BaselinePrice > 0 && c.MinimumPercentage > 0
}
