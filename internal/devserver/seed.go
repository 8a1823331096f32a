package devserver

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/nfrund/chatsync/internal/domain"
	"github.com/spf13/afero"
)

// Fixture is the on-disk form of a store, written by `chatsync seed` and
// loaded by `chatsync serve --seed`.
type Fixture struct {
	Users []domain.Participant `json:"users"`
	Chats []FixtureChat        `json:"chats"`
}

// FixtureChat is one conversation of a fixture. Messages are oldest first.
type FixtureChat struct {
	ID           string           `json:"id"`
	Participants []string         `json:"participants"`
	Messages     []domain.Message `json:"messages"`
}

// SeedOptions controls Generate.
type SeedOptions struct {
	Users    int
	Chats    int
	Messages int
	// Seed makes the output reproducible. Zero picks a random seed.
	Seed int64
	// End is the timestamp of the newest generated message. Zero means now.
	End time.Time
}

// Generate builds a fake data set. The first user gets the fixed id "u1" so a
// token can be issued without reading the fixture back.
func Generate(opts SeedOptions) Fixture {
	if opts.Users < 2 {
		opts.Users = 2
	}
	if opts.Chats < 0 {
		opts.Chats = 0
	}
	if opts.End.IsZero() {
		opts.End = time.Now().UTC()
	}
	f := gofakeit.New(opts.Seed)

	fx := Fixture{Users: make([]domain.Participant, 0, opts.Users)}
	for i := 0; i < opts.Users; i++ {
		fx.Users = append(fx.Users, domain.Participant{
			ID:     fmt.Sprintf("u%d", i+1),
			Name:   f.Name(),
			Email:  f.Email(),
			Avatar: f.URL(),
		})
	}

	for c := 0; c < opts.Chats; c++ {
		members := pickMembers(f, opts.Users, c)
		chat := FixtureChat{ID: f.UUID(), Participants: members}

		// Spread the chat's history over the hours before End; later chats are older.
		start := opts.End.Add(-time.Duration(c+1) * time.Hour)
		unreadTail := f.Number(0, 3)
		for m := 0; m < opts.Messages; m++ {
			sender := members[f.Number(0, len(members)-1)]
			at := start.Add(time.Duration(m) * time.Minute).Add(time.Duration(f.Number(0, 59)) * time.Second)
			readBy := []string{sender}
			if m < opts.Messages-unreadTail {
				readBy = append([]string(nil), members...)
			}
			delivered := at
			chat.Messages = append(chat.Messages, domain.Message{
				ID:          f.UUID(),
				ChatID:      chat.ID,
				SenderID:    sender,
				Content:     f.Sentence(f.Number(3, 12)),
				CreatedAt:   at,
				DeliveredAt: &delivered,
				ReadBy:      readBy,
			})
		}
		fx.Chats = append(fx.Chats, chat)
	}
	return fx
}

// pickMembers returns two or three distinct user ids. Chat c always includes
// user c%users so every user ends up in some chat.
func pickMembers(f *gofakeit.Faker, users, c int) []string {
	first := c % users
	ids := []string{fmt.Sprintf("u%d", first+1)}
	used := map[int]bool{first: true}
	want := 2
	if users > 2 && f.Bool() {
		want = 3
	}
	for len(ids) < want {
		n := f.Number(0, users-1)
		if used[n] {
			continue
		}
		used[n] = true
		ids = append(ids, fmt.Sprintf("u%d", n+1))
	}
	return ids
}

// SaveFixture writes fx as indented JSON, creating parent directories.
func SaveFixture(fs afero.Fs, path string, fx Fixture) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create fixture dir: %w", err)
	}
	data, err := json.MarshalIndent(fx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixture: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

// LoadFixture reads a fixture written by SaveFixture.
func LoadFixture(fs afero.Fs, path string) (Fixture, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture %s: %w", path, err)
	}
	return fx, nil
}

// Load replaces the store's content with fx. Unread counts are derived from
// each message's read list.
func (s *Store) Load(fx Fixture) error {
	users := make(map[string]domain.Participant, len(fx.Users))
	for _, u := range fx.Users {
		if err := domain.Validate(u); err != nil {
			return fmt.Errorf("fixture user %q: %w", u.ID, err)
		}
		users[u.ID] = u
	}

	chats := make(map[string]*chatRecord, len(fx.Chats))
	for _, c := range fx.Chats {
		rec := &chatRecord{
			id:           c.ID,
			participants: append([]string(nil), c.Participants...),
			unread:       make(map[string]int),
		}
		for _, id := range rec.participants {
			if _, ok := users[id]; !ok {
				return fmt.Errorf("fixture chat %q: user %q: %w", c.ID, id, domain.ErrNotFound)
			}
		}
		for _, m := range c.Messages {
			m = m.Clone()
			m.ChatID = c.ID
			rec.messages = append(rec.messages, m)
		}
		domain.SortMessages(rec.messages)
		for _, m := range rec.messages {
			for _, id := range rec.participants {
				if id != m.SenderID && !m.IsReadBy(id) {
					rec.unread[id]++
				}
			}
		}
		if n := len(rec.messages); n > 0 {
			rec.lastActivity = rec.messages[n-1].CreatedAt
		}
		chats[c.ID] = rec
	}

	s.mu.Lock()
	s.users = users
	s.chats = chats
	s.mu.Unlock()
	return nil
}

// Fixture snapshots the store so it can be saved and reloaded.
func (s *Store) Fixture() Fixture {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fx := Fixture{Users: make([]domain.Participant, 0, len(s.users))}
	for _, u := range s.users {
		fx.Users = append(fx.Users, u)
	}
	sort.Slice(fx.Users, func(i, j int) bool { return fx.Users[i].ID < fx.Users[j].ID })

	for _, rec := range s.chats {
		c := FixtureChat{
			ID:           rec.id,
			Participants: append([]string(nil), rec.participants...),
			Messages:     make([]domain.Message, 0, len(rec.messages)),
		}
		for _, m := range rec.messages {
			c.Messages = append(c.Messages, m.Clone())
		}
		fx.Chats = append(fx.Chats, c)
	}
	sort.Slice(fx.Chats, func(i, j int) bool { return fx.Chats[i].ID < fx.Chats[j].ID })
	return fx
}
