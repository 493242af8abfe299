package model

import (
	"time"
)

// ============================================================================
// 积分流水常量
// ============================================================================

const (
	CreditKindGeneral = "CREDITS"         // 通用积分
	CreditKindListing = "LISTING_CREDITS" // 发布积分
)

// ActorSystem 系统操作者标识，用于发布房源时的自动扣减
const ActorSystem = "system"

// ============================================================================
// 积分流水实体
// ============================================================================

// CreditEntry 积分流水表
// 账户余额的每一次变动都必须落一条流水，是对账与审计的依据
//
// 流水表只追加，不修改，不删除。
// 每条流水记录变动前后余额，便于校验余额一致性。
type CreditEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"` // 流水号（全局唯一）
	AccountID     int64     `gorm:"index;not null" json:"account_id"`
	Kind          string    `gorm:"type:varchar(20);not null" json:"kind"`  // CREDITS / LISTING_CREDITS
	Amount        int64     `gorm:"not null" json:"amount"`                 // 正数入账，负数出账
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`         // 变动前余额
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`          // 变动后余额
	Actor         string    `gorm:"type:varchar(64);not null" json:"actor"` // 管理员账户ID 或 system
	Remark        string    `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (CreditEntry) TableName() string {
	return "credit_entry"
}
