package models

import "time"

type Group struct {
	ID                         uint   `gorm:"primaryKey" json:"-"`
	Name                       string `gorm:"uniqueIndex;size:50;not null" json:"name"`
	OwnerID                    uint   `gorm:"not null;index" json:"-"`
	Owner                      *User  `gorm:"foreignKey:OwnerID;constraint:OnDelete:RESTRICT" json:"-"`
	JoinOffersFromUsersAllowed bool   `gorm:"not null" json:"joinOffersFromUsersAllowed"`
}

// "groups" — зарезервированное слово в MySQL 8.
func (Group) TableName() string { return "user_groups" }

// IsOwner: владелец определяется только сравнением идентификаторов.
func (g *Group) IsOwner(userID uint) bool { return g.OwnerID == userID }

type GroupMember struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	GroupID        uint   `gorm:"not null;uniqueIndex:uniq_group_user,priority:1" json:"-"`
	Group          *Group `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	UserID         uint   `gorm:"not null;index;uniqueIndex:uniq_group_user,priority:2" json:"-"`
	User           *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CanEditMembers bool   `gorm:"not null" json:"canEditMembers"`
	CanEditDevices bool   `gorm:"not null" json:"canEditDevices"`
}

// JoinOffer: направленное предложение вступить в группу.
// SentByGroup=true: группа приглашает пользователя, false: пользователь просится в группу.
type JoinOffer struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	GroupID     uint      `gorm:"not null;uniqueIndex:uniq_offer,priority:1" json:"-"`
	Group       *Group    `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"-"`
	UserID      uint      `gorm:"not null;index;uniqueIndex:uniq_offer,priority:2" json:"-"`
	User        *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	SentByGroup bool      `gorm:"not null;uniqueIndex:uniq_offer,priority:3" json:"sentByGroup"`
	Text        *string   `gorm:"size:1000" json:"text,omitempty"`
	SentAt      time.Time `gorm:"not null;index" json:"sentAt"`
}
