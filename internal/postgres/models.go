package postgres

import (
	"time"
)

const keyHolderUser = "User"

type userModel struct {
	ID             int64     `gorm:"column:id;primaryKey"`
	UID            string    `gorm:"column:uid"`
	Username       *string   `gorm:"column:username"`
	Email          string    `gorm:"column:email"`
	PasswordDigest string    `gorm:"column:password_digest"`
	Role           string    `gorm:"column:role"`
	Data           *string   `gorm:"column:data"`
	Level          int       `gorm:"column:level"`
	OTP            bool      `gorm:"column:otp"`
	State          string    `gorm:"column:state"`
	ReferralID     *int64    `gorm:"column:referral_id"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (userModel) TableName() string { return "users" }

type serviceAccountModel struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	UID       string    `gorm:"column:uid"`
	OwnerID   *int64    `gorm:"column:owner_id"`
	Email     string    `gorm:"column:email"`
	Role      string    `gorm:"column:role"`
	Level     int       `gorm:"column:level"`
	State     string    `gorm:"column:state"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (serviceAccountModel) TableName() string { return "service_accounts" }

type permissionModel struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	Action    string    `gorm:"column:action"`
	Role      string    `gorm:"column:role"`
	Verb      string    `gorm:"column:verb"`
	Path      string    `gorm:"column:path"`
	Topic     *string   `gorm:"column:topic"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (permissionModel) TableName() string { return "permissions" }

type apiKeyModel struct {
	ID              int64     `gorm:"column:id;primaryKey"`
	HolderID        int64     `gorm:"column:key_holder_account_id"`
	HolderType      string    `gorm:"column:key_holder_account_type"`
	KID             string    `gorm:"column:kid"`
	Algorithm       string    `gorm:"column:algorithm"`
	Scope           *string   `gorm:"column:scope"`
	SecretEncrypted string    `gorm:"column:secret_encrypted"`
	State           string    `gorm:"column:state"`
	CreatedAt       time.Time `gorm:"column:created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at"`
}

func (apiKeyModel) TableName() string { return "apikeys" }

type activityModel struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	UserID    int64     `gorm:"column:user_id"`
	TargetUID *string   `gorm:"column:target_uid"`
	Category  string    `gorm:"column:category"`
	UserIP    string    `gorm:"column:user_ip"`
	UserAgent string    `gorm:"column:user_agent"`
	Topic     string    `gorm:"column:topic"`
	Action    string    `gorm:"column:action"`
	Result    string    `gorm:"column:result"`
	Data      *string   `gorm:"column:data"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (activityModel) TableName() string { return "activities" }
