package entity

import "time"

// Wallet 积分钱包，Balance 是账本的权威值
type Wallet struct {
	ID        string    `json:"id" gorm:"type:varchar(128);primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:varchar(128);index"`
	Balance   int       `json:"balance" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Wallet) TableName() string {
	return "wallets"
}
