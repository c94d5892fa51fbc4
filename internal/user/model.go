package user

import "time"

type User struct {
	ID        uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	FirstName string     `gorm:"size:100;not null;column:firstname" json:"firstname"`
	LastName  string     `gorm:"size:100;not null;column:lastname" json:"lastname"`
	Email     string     `gorm:"size:100;uniqueIndex;not null" json:"email"`
	GroupRole string     `gorm:"size:100" json:"group_role"`
	IsActive  bool       `gorm:"not null;default:true" json:"is_active"`
	IsDelete  bool       `gorm:"not null;default:false" json:"is_delete"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}
