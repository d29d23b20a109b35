package chat

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/npezzotti/roomchat/internal/database"
)

const (
	UserRoleUser  = "user"
	UserRoleAdmin = "admin"
)

type Profile struct {
	DisplayName string `json:"display_name,omitempty"`
	Color       string `json:"color,omitempty"`
	Pic         string `json:"pic,omitempty"`
}

type userData struct {
	Friends        []string `json:"friends"`
	FriendRequests []string `json:"friend_requests"`
	Blocked        []string `json:"blocked"`
	Profile        Profile  `json:"profile"`
}

type User struct {
	Id            string
	Username      string
	Email         string
	PasswordHash  string
	Role          string
	Banned        bool
	RoleExpiresAt *time.Time
	CreatedAt     time.Time

	Friends []string
	// FriendRequests holds ids of users who asked to befriend this user.
	FriendRequests []string
	Blocked        []string
	Profile        Profile

	Malformed []MalformedField
}

func NewUser(id, username, email, passwordHash string) *User {
	return &User{
		Id:             id,
		Username:       username,
		Email:          email,
		PasswordHash:   passwordHash,
		Role:           UserRoleUser,
		Friends:        []string{},
		FriendRequests: []string{},
		Blocked:        []string{},
	}
}

func UserFromRecord(rec database.UserRecord, policy DecodePolicy) (*User, error) {
	u := &User{
		Id:            rec.Id,
		Username:      rec.Username,
		Email:         rec.Email,
		PasswordHash:  rec.PasswordHash,
		Role:          rec.Role,
		Banned:        rec.Banned,
		RoleExpiresAt: rec.RoleExpiresAt,
		CreatedAt:     rec.CreatedAt,
	}

	var (
		data      userData
		malformed []MalformedField
	)
	decodeBlob("data", rec.Data, &data, &malformed)
	if len(malformed) > 0 {
		if policy == RejectMalformed {
			return nil, &MalformedBlobError{Id: rec.Id, Fields: malformed}
		}
		data = userData{}
		u.Malformed = malformed
	}

	u.Friends = nonNil(data.Friends)
	u.FriendRequests = nonNil(data.FriendRequests)
	u.Blocked = nonNil(data.Blocked)
	u.Profile = data.Profile
	if u.Role == "" {
		u.Role = UserRoleUser
	}

	return u, nil
}

func (u *User) Record() (database.UserRecord, error) {
	data, err := json.Marshal(userData{
		Friends:        nonNil(u.Friends),
		FriendRequests: nonNil(u.FriendRequests),
		Blocked:        nonNil(u.Blocked),
		Profile:        u.Profile,
	})
	if err != nil {
		return database.UserRecord{}, fmt.Errorf("encode user data: %w", err)
	}

	return database.UserRecord{
		Id:            u.Id,
		Username:      u.Username,
		Email:         u.Email,
		PasswordHash:  u.PasswordHash,
		Role:          u.Role,
		Banned:        u.Banned,
		RoleExpiresAt: u.RoleExpiresAt,
		Data:          string(data),
		CreatedAt:     u.CreatedAt,
	}, nil
}

// Avatar returns the profile picture or a generated one.
func (u *User) Avatar() string {
	if u.Profile.Pic != "" {
		return u.Profile.Pic
	}
	return "https://ui-avatars.com/api/?background=random&name=" + url.QueryEscape(u.Username)
}

func (u *User) DisplayName() string {
	if u.Profile.DisplayName != "" {
		return u.Profile.DisplayName
	}
	return u.Username
}

func (u *User) HasBlocked(userId string) bool {
	return slices.Contains(u.Blocked, userId)
}

func (u *User) IsFriend(userId string) bool {
	return slices.Contains(u.Friends, userId)
}

// Block adds userId to the block list and drops any friendship or pending
// request with them.
func (u *User) Block(userId string) bool {
	if u.HasBlocked(userId) {
		return false
	}
	u.Blocked = append(u.Blocked, userId)
	u.Unfriend(userId)
	return true
}

// Unfriend drops any friendship or pending request with userId. It reports
// whether anything was removed.
func (u *User) Unfriend(userId string) bool {
	n := len(u.Friends) + len(u.FriendRequests)
	u.Friends = remove(u.Friends, userId)
	u.FriendRequests = remove(u.FriendRequests, userId)
	return len(u.Friends)+len(u.FriendRequests) != n
}

func (u *User) Unblock(userId string) bool {
	if !u.HasBlocked(userId) {
		return false
	}
	u.Blocked = remove(u.Blocked, userId)
	return true
}

// ReceiveFriendRequest records a request from another user. It is a no-op
// if they are already friends, already asked, or blocked.
func (u *User) ReceiveFriendRequest(fromId string) bool {
	if fromId == u.Id || u.IsFriend(fromId) || u.HasBlocked(fromId) || slices.Contains(u.FriendRequests, fromId) {
		return false
	}
	u.FriendRequests = append(u.FriendRequests, fromId)
	return true
}

// AcceptFriend completes a pending request sent by other to u.
func (u *User) AcceptFriend(other *User) error {
	if !slices.Contains(u.FriendRequests, other.Id) {
		return ErrNoFriendRequest
	}
	u.FriendRequests = remove(u.FriendRequests, other.Id)
	other.FriendRequests = remove(other.FriendRequests, u.Id)

	if !u.IsFriend(other.Id) {
		u.Friends = append(u.Friends, other.Id)
	}
	if !other.IsFriend(u.Id) {
		other.Friends = append(other.Friends, u.Id)
	}
	return nil
}

func (u *User) RejectFriend(fromId string) bool {
	if !slices.Contains(u.FriendRequests, fromId) {
		return false
	}
	u.FriendRequests = remove(u.FriendRequests, fromId)
	return true
}

// EffectiveRole is the role in force at now. A granted role past its
// expiry reads as the default role.
func (u *User) EffectiveRole(now time.Time) string {
	if u.RoleExpiresAt != nil && !now.Before(*u.RoleExpiresAt) {
		return UserRoleUser
	}
	return u.Role
}

// ExpireRole resets an expired role. It reports whether the user changed
// and needs saving.
func (u *User) ExpireRole(now time.Time) bool {
	if u.RoleExpiresAt == nil || now.Before(*u.RoleExpiresAt) {
		return false
	}
	u.Role = UserRoleUser
	u.RoleExpiresAt = nil
	return true
}

func (u *User) IsAdmin(now time.Time) bool {
	return u.EffectiveRole(now) == UserRoleAdmin
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func remove(s []string, v string) []string {
	return slices.DeleteFunc(s, func(x string) bool { return x == v })
}
