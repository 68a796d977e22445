package models

// Profile mirrors the account record the platform keeps per employee.
// Accounts themselves are created and authenticated by the platform's
// identity provider; this service owns only the two-factor columns.
// TwoFactorSecret is stored AES-GCM encrypted, nullable, and is cleared
// together with the flag when two-factor auth is disabled.
type Profile struct {
	BaseModel
	Email            string  `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	FullName         string  `json:"fullName" gorm:"type:varchar(200);not null"`
	Role             string  `json:"role" gorm:"type:varchar(30);not null;default:'operator'"`
	TwoFactorEnabled bool    `json:"twoFactorEnabled" gorm:"not null;default:false"`
	TwoFactorSecret  *string `json:"-" gorm:"type:text"`
}

func (Profile) TableName() string {
	return "profiles"
}
