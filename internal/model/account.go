package model

import (
	"time"
)

// ============================================================================
// 账户角色常量
// ============================================================================

const (
	RoleAdmin    = "admin"    // 管理员，负责审核房源、调整积分
	RoleAgent    = "agent"    // 经纪人，发布和维护自己的房源
	RoleConsumer = "consumer" // 普通用户，浏览已上架房源
)

// ValidRole 判断角色是否合法
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleAgent, RoleConsumer:
		return true
	}
	return false
}

// Account 用户账户表
// 持有两个互相独立的余额：
//   - Credits: 通用积分，管理员手动增减
//   - ListingCredits: 发布积分，仅在成功发布房源时扣减一枚
//
// 两个余额都不允许为负，且只能通过 AccountRepository 的条件更新修改，
// 不允许直接写字段
type Account struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email          string    `gorm:"type:varchar(128);uniqueIndex;not null" json:"email"`
	Role           string    `gorm:"type:varchar(16);not null" json:"role"`
	Credits        int64     `gorm:"not null;default:0" json:"credits"`         // 通用积分余额
	ListingCredits int64     `gorm:"not null;default:0" json:"listing_credits"` // 发布积分余额
	Version        int       `gorm:"not null;default:0" json:"version"`         // 乐观锁版本号
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
