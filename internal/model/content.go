package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrImageNotInList = errors.New("图片不在房源图片列表中")

// StringList 以 JSON 文本存入数据库的字符串列表
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("StringList 不支持的列类型 %T", value)
}

// ============================================================================
// 房源内容快照
// ============================================================================

// ListingContent 房源的图片列表、主图与配套设施快照
//
// 所有编辑操作都是值语义：返回新的快照，不修改接收者。
// 不变式：
//   - ImageURLs 内无重复，保持插入顺序
//   - ImageURLs 非空时 MainImageURL 必为其成员；列表清空后主图同时清空
//   - Amenities 是集合（无重复），持久化时按字典序排列
type ListingContent struct {
	ImageURLs    StringList `json:"image_urls"`
	MainImageURL string     `json:"main_image_url"`
	Amenities    StringList `json:"amenities"`
}

// AddImage 追加图片
// 重复添加是幂等的空操作；第一张图片自动成为主图
func (c ListingContent) AddImage(url string) ListingContent {
	for _, u := range c.ImageURLs {
		if u == url {
			return c
		}
	}
	next := c.clone()
	next.ImageURLs = append(next.ImageURLs, url)
	if len(next.ImageURLs) == 1 {
		next.MainImageURL = url
	}
	return next
}

// RemoveImage 移除图片
// 移除的是主图时，主图顺延为剩余列表的第一张；列表清空则主图清空
func (c ListingContent) RemoveImage(url string) ListingContent {
	next := c.clone()
	kept := next.ImageURLs[:0]
	for _, u := range next.ImageURLs {
		if u != url {
			kept = append(kept, u)
		}
	}
	next.ImageURLs = kept
	if next.MainImageURL == url {
		if len(next.ImageURLs) > 0 {
			next.MainImageURL = next.ImageURLs[0]
		} else {
			next.MainImageURL = ""
		}
	}
	return next
}

// SetMainImage 指定主图，url 必须已在图片列表中
func (c ListingContent) SetMainImage(url string) (ListingContent, error) {
	for _, u := range c.ImageURLs {
		if u == url {
			next := c.clone()
			next.MainImageURL = url
			return next, nil
		}
	}
	return c, ErrImageNotInList
}

// ToggleAmenity 配套设施开关：不存在则加入，存在则移除（自反操作）
func (c ListingContent) ToggleAmenity(label string) ListingContent {
	next := c.clone()
	kept := next.Amenities[:0]
	found := false
	for _, a := range next.Amenities {
		if a == label {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	next.Amenities = kept
	if !found {
		next.Amenities = append(next.Amenities, label)
		sort.Strings(next.Amenities)
	}
	return next
}

func (c ListingContent) clone() ListingContent {
	return ListingContent{
		ImageURLs:    append(StringList(nil), c.ImageURLs...),
		MainImageURL: c.MainImageURL,
		Amenities:    append(StringList(nil), c.Amenities...),
	}
}

// ============================================================================
// 静态校验
// ============================================================================

// ListingAttributes 创建/更新房源时客户端提交的可变字段
type ListingAttributes struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	PropertyType string  `json:"property_type"`
	ListingType  string  `json:"listing_type"`
	Price        float64 `json:"price"`
	Bedrooms     int     `json:"bedrooms"`
	Bathrooms    int     `json:"bathrooms"`
	AreaSqm      float64 `json:"area_sqm"`
	Address      string  `json:"address"`
	City         string  `json:"city"`
	Region       string  `json:"region"`
	PostalCode   string  `json:"postal_code"`
}

// ValidationError 静态校验失败，Field 指出第一个不满足规则的字段
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("字段 %s 校验失败: %s", e.Field, e.Reason)
}

// ValidateAttributes 持久化前的静态校验
// 按固定顺序检查，返回第一个失败的字段：
// title -> description -> price -> area -> address -> city
func ValidateAttributes(a *ListingAttributes) error {
	if strings.TrimSpace(a.Title) == "" {
		return &ValidationError{Field: "title", Reason: "标题不能为空"}
	}
	if strings.TrimSpace(a.Description) == "" {
		return &ValidationError{Field: "description", Reason: "描述不能为空"}
	}
	if a.Price <= 0 {
		return &ValidationError{Field: "price", Reason: "价格必须大于0"}
	}
	if a.AreaSqm <= 0 {
		return &ValidationError{Field: "area", Reason: "面积必须大于0"}
	}
	if strings.TrimSpace(a.Address) == "" {
		return &ValidationError{Field: "address", Reason: "地址不能为空"}
	}
	if strings.TrimSpace(a.City) == "" {
		return &ValidationError{Field: "city", Reason: "城市不能为空"}
	}
	if !ValidPropertyType(a.PropertyType) {
		return &ValidationError{Field: "property_type", Reason: "不支持的房产类型"}
	}
	if !ValidListingType(a.ListingType) {
		return &ValidationError{Field: "listing_type", Reason: "只支持 sale 或 rent"}
	}
	if a.Bedrooms < 0 {
		return &ValidationError{Field: "bedrooms", Reason: "卧室数不能为负"}
	}
	if a.Bathrooms < 0 {
		return &ValidationError{Field: "bathrooms", Reason: "卫生间数不能为负"}
	}
	return nil
}
