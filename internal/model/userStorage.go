package model

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"golang.org/x/oauth2"
	"resume-scheduler/internal/model/sqlquery"
	"sync"
)

const DefaultTimezone = "Europe/Moscow"

type User struct {
	Id       string
	Token    *oauth2.Token
	Timezone string
}

type UserStorage interface {
	GetUser(ctx context.Context, id string) (User, error)
	SaveToken(ctx context.Context, id string, token *oauth2.Token) error
	SetTimezone(ctx context.Context, id, timezone string) error
}

type sqlUserStorage struct {
	database *sql.DB
}

func NewSQLUserStorage(database *sql.DB) *sqlUserStorage {
	return &sqlUserStorage{database}
}

func (st *sqlUserStorage) GetUser(ctx context.Context, id string) (User, error) {
	var rawToken []byte
	user := User{}
	err := st.database.QueryRowContext(ctx, sqlquery.GetUser, id).Scan(&user.Id, &rawToken, &user.Timezone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrorNotFound
		}
		return User{}, fmt.Errorf("failed getting user %s: %w", id, err)
	}
	if len(rawToken) > 0 {
		user.Token = &oauth2.Token{}
		if err = json.Unmarshal(rawToken, user.Token); err != nil {
			return User{}, fmt.Errorf("failed decoding token of user %s: %w", id, err)
		}
	}
	return user, nil
}

func (st *sqlUserStorage) SaveToken(ctx context.Context, id string, token *oauth2.Token) error {
	rawToken, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed encoding token of user %s: %w", id, err)
	}
	if _, err = st.database.ExecContext(ctx, sqlquery.SaveToken, id, rawToken); err != nil {
		return fmt.Errorf("failed saving token of user %s: %w", id, err)
	}
	return nil
}

func (st *sqlUserStorage) SetTimezone(ctx context.Context, id, timezone string) error {
	if _, err := st.database.ExecContext(ctx, sqlquery.SetTimezone, id, timezone); err != nil {
		return fmt.Errorf("failed setting timezone of user %s: %w", id, err)
	}
	return nil
}

type memoryUserStorage struct {
	lock  *sync.Mutex
	users map[string]User
}

func NewMemoryUserStorage() *memoryUserStorage {
	return &memoryUserStorage{&sync.Mutex{}, make(map[string]User)}
}

func (st *memoryUserStorage) GetUser(_ context.Context, id string) (User, error) {
	st.lock.Lock()
	defer st.lock.Unlock()
	user, ok := st.users[id]
	if !ok {
		return User{}, ErrorNotFound
	}
	return user, nil
}

func (st *memoryUserStorage) SaveToken(_ context.Context, id string, token *oauth2.Token) error {
	st.lock.Lock()
	defer st.lock.Unlock()
	user := st.userLocked(id)
	user.Token = token
	st.users[id] = user
	return nil
}

func (st *memoryUserStorage) SetTimezone(_ context.Context, id, timezone string) error {
	st.lock.Lock()
	defer st.lock.Unlock()
	user := st.userLocked(id)
	user.Timezone = timezone
	st.users[id] = user
	return nil
}

func (st *memoryUserStorage) userLocked(id string) User {
	user, ok := st.users[id]
	if !ok {
		user = User{Id: id, Timezone: DefaultTimezone}
	}
	return user
}
