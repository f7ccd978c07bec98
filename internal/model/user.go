package model

import "time"

// User 表示系统用户。
type User struct {
	ID              uint       `gorm:"primaryKey" json:"id"`                                // 用户 ID
	Name            string     `gorm:"type:varchar(255);not null" json:"name"`              // 显示名称
	Email           string     `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"` // 邮箱（唯一）
	Password        string     `gorm:"not null" json:"-"`                                   // bcrypt 哈希
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`                         // 注册即视为已验证
	CreatedAt       time.Time  `json:"created_at"`                                          // 创建时间
	UpdatedAt       time.Time  `json:"updated_at"`                                          // 更新时间

	Tasks  []Task        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Tokens []AccessToken `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
