package database

import (
	"github.com/stretchr/testify/mock"
)

type MockRoomChatRepository struct {
	mock.Mock
}

func (m *MockRoomChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRoomChatRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockRoomChatRepository) GetRoom(id string) (RoomRecord, error) {
	args := m.Called(id)
	return args.Get(0).(RoomRecord), args.Error(1)
}
func (m *MockRoomChatRepository) CreateRoom(rec RoomRecord) (RoomRecord, error) {
	args := m.Called(rec)
	return args.Get(0).(RoomRecord), args.Error(1)
}
func (m *MockRoomChatRepository) SaveRoom(rec RoomRecord) (RoomRecord, error) {
	args := m.Called(rec)
	return args.Get(0).(RoomRecord), args.Error(1)
}
func (m *MockRoomChatRepository) ListRooms() ([]RoomRecord, error) {
	args := m.Called()
	return args.Get(0).([]RoomRecord), args.Error(1)
}
func (m *MockRoomChatRepository) GetRoomByInviteCode(code string) (RoomRecord, error) {
	args := m.Called(code)
	return args.Get(0).(RoomRecord), args.Error(1)
}
func (m *MockRoomChatRepository) GetRoomByPairKey(key string) (RoomRecord, error) {
	args := m.Called(key)
	return args.Get(0).(RoomRecord), args.Error(1)
}
func (m *MockRoomChatRepository) QuarantineBlob(blob QuarantinedBlob) error {
	args := m.Called(blob)
	return args.Error(0)
}
func (m *MockRoomChatRepository) GetUser(id string) (UserRecord, error) {
	args := m.Called(id)
	return args.Get(0).(UserRecord), args.Error(1)
}
func (m *MockRoomChatRepository) GetUserByEmail(email string) (UserRecord, error) {
	args := m.Called(email)
	return args.Get(0).(UserRecord), args.Error(1)
}
func (m *MockRoomChatRepository) GetUserByUsername(username string) (UserRecord, error) {
	args := m.Called(username)
	return args.Get(0).(UserRecord), args.Error(1)
}
func (m *MockRoomChatRepository) CreateUser(rec UserRecord) (UserRecord, error) {
	args := m.Called(rec)
	return args.Get(0).(UserRecord), args.Error(1)
}
func (m *MockRoomChatRepository) SaveUser(rec UserRecord) (UserRecord, error) {
	args := m.Called(rec)
	return args.Get(0).(UserRecord), args.Error(1)
}
func (m *MockRoomChatRepository) DeleteUser(id string) error {
	args := m.Called(id)
	return args.Error(0)
}
func (m *MockRoomChatRepository) SearchUsers(query string) ([]UserRecord, error) {
	args := m.Called(query)
	return args.Get(0).([]UserRecord), args.Error(1)
}
