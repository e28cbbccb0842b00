package model

import "time"

type User struct {
	ID         uint64    `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"size:64;not null" json:"username"`
	Password   string    `gorm:"size:255;not null" json:"-"`
	Email      string    `gorm:"uniqueIndex;size:128;not null" json:"email"`
	ProfilePic string    `gorm:"size:255" json:"profilePic"`
	Location   string    `gorm:"size:128" json:"location"`
	MemberOf   []uint64  `gorm:"-" json:"memberOf"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserRef 活动、评论和成员列表里附带的用户展示字段
type UserRef struct {
	ID         uint64 `json:"id"`
	Username   string `json:"username"`
	ProfilePic string `json:"profilePic"`
}

func (u *User) Ref() *UserRef {
	if u == nil {
		return nil
	}
	return &UserRef{ID: u.ID, Username: u.Username, ProfilePic: u.ProfilePic}
}
