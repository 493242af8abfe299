package model

import (
	"time"
)

// ============================================================================
// 房源状态常量与状态机
// ============================================================================

const (
	ListingStatusPending  = "PENDING"  // 待审核（初始状态）
	ListingStatusApproved = "APPROVED" // 已上架，对普通用户可见
	ListingStatusRejected = "REJECTED" // 已驳回，经纪人修改后可重新提交
	ListingStatusArchived = "ARCHIVED" // 已下架（终态，不可恢复）
)

// ValidStatusTransitions 房源状态机
// ARCHIVED 没有出边：下架后只能重新发布一条新房源
var ValidStatusTransitions = map[string][]string{
	ListingStatusPending:  {ListingStatusApproved, ListingStatusRejected},
	ListingStatusRejected: {ListingStatusPending, ListingStatusArchived},
	ListingStatusApproved: {ListingStatusArchived},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// ============================================================================
// 房源属性枚举
// ============================================================================

const (
	PropertyTypeApartment  = "APARTMENT"
	PropertyTypeHouse      = "HOUSE"
	PropertyTypeCondo      = "CONDO"
	PropertyTypeTownhouse  = "TOWNHOUSE"
	PropertyTypeLand       = "LAND"
	PropertyTypeCommercial = "COMMERCIAL"
)

const (
	ListingTypeSale = "sale"
	ListingTypeRent = "rent"
)

func ValidPropertyType(t string) bool {
	switch t {
	case PropertyTypeApartment, PropertyTypeHouse, PropertyTypeCondo,
		PropertyTypeTownhouse, PropertyTypeLand, PropertyTypeCommercial:
		return true
	}
	return false
}

func ValidListingType(t string) bool {
	return t == ListingTypeSale || t == ListingTypeRent
}

// Listing 房源表
// AgentID 创建后不可变；ViewsCount 只增不减；
// 图片列表与主图的一致性见 ListingContent
type Listing struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ListingNo    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"listing_no"` // 房源编号（全局唯一）
	AgentID      int64      `gorm:"index;not null" json:"agent_id"`                          // 所属经纪人
	Title        string     `gorm:"type:varchar(128);not null" json:"title"`
	Description  string     `gorm:"type:text;not null" json:"description"`
	PropertyType string     `gorm:"type:varchar(32);not null" json:"property_type"`
	ListingType  string     `gorm:"type:varchar(8);not null" json:"listing_type"` // sale / rent
	Price        float64    `gorm:"not null" json:"price"`
	Bedrooms     int        `gorm:"not null;default:0" json:"bedrooms"`
	Bathrooms    int        `gorm:"not null;default:0" json:"bathrooms"`
	AreaSqm      float64    `gorm:"not null" json:"area_sqm"`
	Address      string     `gorm:"type:varchar(256);not null" json:"address"`
	City         string     `gorm:"type:varchar(64);not null" json:"city"`
	Region       string     `gorm:"type:varchar(64)" json:"region"`
	PostalCode   string     `gorm:"type:varchar(16)" json:"postal_code"`
	Status       string     `gorm:"type:varchar(16);index;not null" json:"status"`
	MainImageURL string     `gorm:"type:varchar(512)" json:"main_image_url"` // 空串表示无主图
	ImageURLs    StringList `gorm:"type:text" json:"image_urls"`
	Amenities    StringList `gorm:"type:text" json:"amenities"`
	ViewsCount   int64      `gorm:"not null;default:0" json:"views_count"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Listing) TableName() string {
	return "listing"
}

// Content 取出图片/配套设施的不可变快照
func (l *Listing) Content() ListingContent {
	return ListingContent{
		ImageURLs:    append(StringList(nil), l.ImageURLs...),
		MainImageURL: l.MainImageURL,
		Amenities:    append(StringList(nil), l.Amenities...),
	}
}

// ApplyContent 将编辑后的快照写回实体
func (l *Listing) ApplyContent(c ListingContent) {
	l.ImageURLs = c.ImageURLs
	l.MainImageURL = c.MainImageURL
	l.Amenities = c.Amenities
}
