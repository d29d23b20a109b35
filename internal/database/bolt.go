package database

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ugorji/go/codec"
	"go.etcd.io/bbolt"
)

var msgpackHandle = codec.MsgpackHandle{WriteExt: true}

const (
	roomsBucket      = "rooms"
	roomInvitesIndex = "room_invites"
	roomPairsIndex   = "room_pairs"
	usersBucket      = "users"
	userEmailsIndex  = "user_emails"
	userNamesIndex   = "user_names"
	quarantineBucket = "quarantine"

	searchLimit = 20
)

var allBuckets = []string{
	roomsBucket,
	roomInvitesIndex,
	roomPairsIndex,
	usersBucket,
	userEmailsIndex,
	userNamesIndex,
	quarantineBucket,
}

// BoltRoomChatRepository keeps every record as an encoded value in an
// embedded bbolt file. Invite codes, pair keys, emails and usernames are
// indexed in their own buckets.
type BoltRoomChatRepository struct {
	db *bbolt.DB
}

func NewBoltRoomChatRepository(path string) (*BoltRoomChatRepository, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltRoomChatRepository{db: db}, nil
}

func encode(v any) ([]byte, error) {
	var data []byte
	if err := codec.NewEncoderBytes(&data, &msgpackHandle).Encode(v); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return data, nil
}

func decode(data []byte, v any) error {
	if err := codec.NewDecoderBytes(data, &msgpackHandle).Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func (db *BoltRoomChatRepository) Ping() error {
	return db.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(roomsBucket)) == nil {
			return fmt.Errorf("bucket %q missing", roomsBucket)
		}
		return nil
	})
}

func (db *BoltRoomChatRepository) Close() error {
	return db.db.Close()
}

func getRoomTx(tx *bbolt.Tx, id string) (RoomRecord, error) {
	data := tx.Bucket([]byte(roomsBucket)).Get([]byte(id))
	if data == nil {
		return RoomRecord{}, ErrNotFound
	}

	var rec RoomRecord
	err := decode(data, &rec)
	return rec, err
}

func putRoomTx(tx *bbolt.Tx, rec RoomRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(roomsBucket)).Put([]byte(rec.Id), data)
}

func (db *BoltRoomChatRepository) GetRoom(id string) (RoomRecord, error) {
	var rec RoomRecord
	err := db.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getRoomTx(tx, id)
		return err
	})
	return rec, err
}

func (db *BoltRoomChatRepository) getRoomByIndex(index, key string) (RoomRecord, error) {
	var rec RoomRecord
	err := db.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(index)).Get([]byte(key))
		if id == nil {
			return ErrNotFound
		}

		var err error
		rec, err = getRoomTx(tx, string(id))
		return err
	})
	return rec, err
}

func (db *BoltRoomChatRepository) GetRoomByInviteCode(code string) (RoomRecord, error) {
	return db.getRoomByIndex(roomInvitesIndex, code)
}

func (db *BoltRoomChatRepository) GetRoomByPairKey(key string) (RoomRecord, error) {
	return db.getRoomByIndex(roomPairsIndex, key)
}

func (db *BoltRoomChatRepository) CreateRoom(rec RoomRecord) (RoomRecord, error) {
	rec.Version = 1
	err := db.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(roomsBucket)).Get([]byte(rec.Id)) != nil {
			return fmt.Errorf("%w: room %q", ErrDuplicate, rec.Id)
		}

		invites := tx.Bucket([]byte(roomInvitesIndex))
		if rec.InviteCode != "" {
			if invites.Get([]byte(rec.InviteCode)) != nil {
				return fmt.Errorf("%w: invite code %q", ErrDuplicate, rec.InviteCode)
			}
			if err := invites.Put([]byte(rec.InviteCode), []byte(rec.Id)); err != nil {
				return err
			}
		}

		pairs := tx.Bucket([]byte(roomPairsIndex))
		if rec.PairKey != "" {
			if pairs.Get([]byte(rec.PairKey)) != nil {
				return fmt.Errorf("%w: pair %q", ErrDuplicate, rec.PairKey)
			}
			if err := pairs.Put([]byte(rec.PairKey), []byte(rec.Id)); err != nil {
				return err
			}
		}

		return putRoomTx(tx, rec)
	})
	if err != nil {
		return RoomRecord{}, err
	}

	return rec, nil
}

func (db *BoltRoomChatRepository) SaveRoom(rec RoomRecord) (RoomRecord, error) {
	err := db.db.Update(func(tx *bbolt.Tx) error {
		stored, err := getRoomTx(tx, rec.Id)
		if err != nil {
			return err
		}

		if stored.Version != rec.Version {
			return ErrConflict
		}

		if stored.InviteCode != rec.InviteCode {
			invites := tx.Bucket([]byte(roomInvitesIndex))
			if rec.InviteCode != "" {
				if owner := invites.Get([]byte(rec.InviteCode)); owner != nil && string(owner) != rec.Id {
					return fmt.Errorf("%w: invite code %q", ErrDuplicate, rec.InviteCode)
				}
				if err := invites.Put([]byte(rec.InviteCode), []byte(rec.Id)); err != nil {
					return err
				}
			}
			if stored.InviteCode != "" {
				if err := invites.Delete([]byte(stored.InviteCode)); err != nil {
					return err
				}
			}
		}

		// the pair key of a private room never changes
		rec.PairKey = stored.PairKey
		rec.Version = stored.Version + 1
		return putRoomTx(tx, rec)
	})
	if err != nil {
		return RoomRecord{}, err
	}

	return rec, nil
}

func (db *BoltRoomChatRepository) ListRooms() ([]RoomRecord, error) {
	var rooms []RoomRecord
	err := db.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(roomsBucket)).ForEach(func(_, v []byte) error {
			var rec RoomRecord
			if err := decode(v, &rec); err != nil {
				return err
			}
			rooms = append(rooms, rec)
			return nil
		})
	})

	return rooms, err
}

func (db *BoltRoomChatRepository) QuarantineBlob(blob QuarantinedBlob) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(quarantineBucket))
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		data, err := encode(blob)
		if err != nil {
			return err
		}

		key := fmt.Sprintf("%s/%s/%020d", blob.OwnerId, blob.Field, seq)
		return b.Put([]byte(key), data)
	})
}

// QuarantinedBlobs returns the blobs set aside for one owner, ordered by field.
func (db *BoltRoomChatRepository) QuarantinedBlobs(ownerId string) ([]QuarantinedBlob, error) {
	var blobs []QuarantinedBlob
	err := db.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(quarantineBucket)).Cursor()
		prefix := []byte(ownerId + "/")
		for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
			var blob QuarantinedBlob
			if err := decode(v, &blob); err != nil {
				return err
			}
			blobs = append(blobs, blob)
		}
		return nil
	})

	return blobs, err
}

func getUserTx(tx *bbolt.Tx, id string) (UserRecord, error) {
	data := tx.Bucket([]byte(usersBucket)).Get([]byte(id))
	if data == nil {
		return UserRecord{}, ErrNotFound
	}

	var rec UserRecord
	err := decode(data, &rec)
	return rec, err
}

func putUserTx(tx *bbolt.Tx, rec UserRecord) error {
	data, err := encode(rec)
	if err != nil {
		return err
	}
	return tx.Bucket([]byte(usersBucket)).Put([]byte(rec.Id), data)
}

func (db *BoltRoomChatRepository) GetUser(id string) (UserRecord, error) {
	var rec UserRecord
	err := db.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getUserTx(tx, id)
		return err
	})
	return rec, err
}

func (db *BoltRoomChatRepository) getUserByIndex(index, key string) (UserRecord, error) {
	var rec UserRecord
	err := db.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(index)).Get([]byte(key))
		if id == nil {
			return ErrNotFound
		}

		var err error
		rec, err = getUserTx(tx, string(id))
		return err
	})
	return rec, err
}

func (db *BoltRoomChatRepository) GetUserByEmail(email string) (UserRecord, error) {
	return db.getUserByIndex(userEmailsIndex, email)
}

func (db *BoltRoomChatRepository) GetUserByUsername(username string) (UserRecord, error) {
	return db.getUserByIndex(userNamesIndex, username)
}

func (db *BoltRoomChatRepository) CreateUser(rec UserRecord) (UserRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	err := db.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(usersBucket)).Get([]byte(rec.Id)) != nil {
			return fmt.Errorf("%w: user %q", ErrDuplicate, rec.Id)
		}

		emails := tx.Bucket([]byte(userEmailsIndex))
		if emails.Get([]byte(rec.Email)) != nil {
			return fmt.Errorf("%w: email %q", ErrDuplicate, rec.Email)
		}

		names := tx.Bucket([]byte(userNamesIndex))
		if names.Get([]byte(rec.Username)) != nil {
			return fmt.Errorf("%w: username %q", ErrDuplicate, rec.Username)
		}

		if err := emails.Put([]byte(rec.Email), []byte(rec.Id)); err != nil {
			return err
		}
		if err := names.Put([]byte(rec.Username), []byte(rec.Id)); err != nil {
			return err
		}

		return putUserTx(tx, rec)
	})
	if err != nil {
		return UserRecord{}, err
	}

	return rec, nil
}

func reindex(b *bbolt.Bucket, oldKey, newKey, id string) error {
	if oldKey == newKey {
		return nil
	}

	if owner := b.Get([]byte(newKey)); owner != nil && string(owner) != id {
		return fmt.Errorf("%w: %q", ErrDuplicate, newKey)
	}

	if err := b.Delete([]byte(oldKey)); err != nil {
		return err
	}

	return b.Put([]byte(newKey), []byte(id))
}

func (db *BoltRoomChatRepository) SaveUser(rec UserRecord) (UserRecord, error) {
	err := db.db.Update(func(tx *bbolt.Tx) error {
		stored, err := getUserTx(tx, rec.Id)
		if err != nil {
			return err
		}

		if err := reindex(tx.Bucket([]byte(userEmailsIndex)), stored.Email, rec.Email, rec.Id); err != nil {
			return err
		}
		if err := reindex(tx.Bucket([]byte(userNamesIndex)), stored.Username, rec.Username, rec.Id); err != nil {
			return err
		}

		rec.CreatedAt = stored.CreatedAt
		return putUserTx(tx, rec)
	})
	if err != nil {
		return UserRecord{}, err
	}

	return rec, nil
}

func (db *BoltRoomChatRepository) DeleteUser(id string) error {
	return db.db.Update(func(tx *bbolt.Tx) error {
		stored, err := getUserTx(tx, id)
		if err != nil {
			return err
		}

		if err := tx.Bucket([]byte(userEmailsIndex)).Delete([]byte(stored.Email)); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(userNamesIndex)).Delete([]byte(stored.Username)); err != nil {
			return err
		}

		return tx.Bucket([]byte(usersBucket)).Delete([]byte(id))
	})
}

// SearchUsers does a case-insensitive substring match over usernames.
func (db *BoltRoomChatRepository) SearchUsers(query string) ([]UserRecord, error) {
	query = strings.ToLower(query)

	var users []UserRecord
	err := db.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(usersBucket)).ForEach(func(_, v []byte) error {
			var rec UserRecord
			if err := decode(v, &rec); err != nil {
				return err
			}
			if strings.Contains(strings.ToLower(rec.Username), query) {
				users = append(users, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	if len(users) > searchLimit {
		users = users[:searchLimit]
	}

	return users, nil
}
