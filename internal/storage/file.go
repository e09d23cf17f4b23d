package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/yourname/sleepbot/internal"
)

// fileDocument is the on-disk layout of FileStorage.
type fileDocument struct {
	Users         []*internal.User         `json:"users"`
	Sessions      []*internal.SleepSession `json:"sleep_records"`
	Notes         []*internal.Note         `json:"notes"`
	LastSessionID int64                    `json:"last_sleep_record_id"`
	LastNoteID    int64                    `json:"last_note_id"`
}

// FileStorage keeps all tables in one JSON document that is rewritten
// atomically after every mutation.
type FileStorage struct {
	users         map[int64]*internal.User
	sessions      map[int64]*internal.SleepSession   // id -> session
	userSessions  map[int64][]*internal.SleepSession // userID -> sessions, ascending id
	notes         map[int64][]*internal.Note         // sessionID -> notes
	lastSessionID int64
	lastNoteID    int64
	mu            sync.RWMutex
	dataFile      string
	logger        internal.Logger
}

func NewFileStorage(dataFile string, logger internal.Logger) (*FileStorage, error) {
	s := &FileStorage{
		users:        make(map[int64]*internal.User),
		sessions:     make(map[int64]*internal.SleepSession),
		userSessions: make(map[int64][]*internal.SleepSession),
		notes:        make(map[int64][]*internal.Note),
		dataFile:     dataFile,
		logger:       logger,
	}
	if err := os.MkdirAll(filepath.Dir(dataFile), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	if err := s.load(); err != nil {
		logger.Errorf("storage: failed to load %s: %v", dataFile, err)
		return nil, err
	}
	return s, nil
}

func (s *FileStorage) load() error {
	file, err := os.Open(s.dataFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	var doc fileDocument
	if err := json.NewDecoder(file).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range doc.Users {
		s.users[u.ID] = u
	}
	for _, sess := range doc.Sessions {
		s.sessions[sess.ID] = sess
		s.userSessions[sess.UserID] = append(s.userSessions[sess.UserID], sess)
	}
	for userID := range s.userSessions {
		sort.Slice(s.userSessions[userID], func(i, j int) bool {
			return s.userSessions[userID][i].ID < s.userSessions[userID][j].ID
		})
	}
	for _, n := range doc.Notes {
		s.notes[n.SleepSessionID] = append(s.notes[n.SleepSessionID], n)
	}
	s.lastSessionID = doc.LastSessionID
	s.lastNoteID = doc.LastNoteID
	return nil
}

func atomicWriteFileJSON(filePath string, data interface{}) error {
	tempFile := filePath + ".tmp"
	f, err := os.Create(tempFile)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tempFile)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tempFile)
		return err
	}

	return os.Rename(tempFile, filePath)
}

// persistLocked writes the whole document. Caller holds s.mu.
func (s *FileStorage) persistLocked() error {
	doc := fileDocument{
		Users:         make([]*internal.User, 0, len(s.users)),
		Sessions:      make([]*internal.SleepSession, 0, len(s.sessions)),
		Notes:         []*internal.Note{},
		LastSessionID: s.lastSessionID,
		LastNoteID:    s.lastNoteID,
	}
	for _, u := range s.users {
		doc.Users = append(doc.Users, u)
	}
	for _, sess := range s.sessions {
		doc.Sessions = append(doc.Sessions, sess)
	}
	for _, ns := range s.notes {
		doc.Notes = append(doc.Notes, ns...)
	}
	sort.Slice(doc.Users, func(i, j int) bool { return doc.Users[i].ID < doc.Users[j].ID })
	sort.Slice(doc.Sessions, func(i, j int) bool { return doc.Sessions[i].ID < doc.Sessions[j].ID })
	sort.Slice(doc.Notes, func(i, j int) bool { return doc.Notes[i].ID < doc.Notes[j].ID })

	if err := atomicWriteFileJSON(s.dataFile, doc); err != nil {
		s.logger.Errorf("storage: error saving %s: %v", s.dataFile, err)
		return fmt.Errorf("write data file: %w", err)
	}
	return nil
}

func (s *FileStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// --- UserRepository ---
func (s *FileStorage) RegisterUser(ctx context.Context, userID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; ok {
		return nil
	}
	s.users[userID] = &internal.User{ID: userID, Name: name}
	if err := s.persistLocked(); err != nil {
		delete(s.users, userID)
		return err
	}
	return nil
}

func (s *FileStorage) UserExists(ctx context.Context, userID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok, nil
}

// --- SessionRepository ---
func (s *FileStorage) InsertSession(ctx context.Context, userID int64, start time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return 0, fmt.Errorf("insert sleep record: %w", internal.ErrUserNotFound)
	}

	sess := &internal.SleepSession{ID: s.lastSessionID + 1, UserID: userID, SleepTime: start.UTC()}
	prev := s.userSessions[userID]
	s.sessions[sess.ID] = sess
	s.userSessions[userID] = append(prev, sess)
	s.lastSessionID = sess.ID

	if err := s.persistLocked(); err != nil {
		delete(s.sessions, sess.ID)
		s.userSessions[userID] = prev
		s.lastSessionID--
		return 0, err
	}
	return sess.ID, nil
}

// updateSession mutates the session in place and restores it if the
// document cannot be written.
func (s *FileStorage) updateSession(sessionID int64, mutate func(sess *internal.SleepSession)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[sessionID]
	if !ok {
		return internal.ErrSessionNotFound
	}
	old := *cur
	mutate(cur)
	if err := s.persistLocked(); err != nil {
		*cur = old
		return err
	}
	return nil
}

func (s *FileStorage) UpdateSleepStart(ctx context.Context, sessionID int64, start time.Time) error {
	return s.updateSession(sessionID, func(sess *internal.SleepSession) {
		sess.SleepTime = start.UTC()
	})
}

func (s *FileStorage) UpdateWake(ctx context.Context, sessionID int64, wake time.Time) error {
	return s.updateSession(sessionID, func(sess *internal.SleepSession) {
		w := wake.UTC()
		sess.WakeTime = &w
	})
}

func (s *FileStorage) UpdateRating(ctx context.Context, sessionID int64, rating int) error {
	return s.updateSession(sessionID, func(sess *internal.SleepSession) {
		q := rating
		sess.Quality = &q
	})
}

func copySession(sess *internal.SleepSession) internal.SleepSession {
	c := *sess
	if sess.WakeTime != nil {
		w := *sess.WakeTime
		c.WakeTime = &w
	}
	if sess.Quality != nil {
		q := *sess.Quality
		c.Quality = &q
	}
	return c
}

func (s *FileStorage) LatestSession(ctx context.Context, userID int64) (*internal.SleepSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.userSessions[userID]
	if len(list) == 0 {
		return nil, internal.ErrSessionNotFound
	}
	latest := copySession(list[len(list)-1])
	return &latest, nil
}

func (s *FileStorage) ListSessions(ctx context.Context, userID int64, since time.Time) ([]internal.SleepSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.userSessions[userID]
	sessions := []internal.SleepSession{}
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].SleepTime.Before(since) {
			continue
		}
		sessions = append(sessions, copySession(list[i]))
	}
	return sessions, nil
}

// --- NoteRepository ---
func (s *FileStorage) InsertNote(ctx context.Context, sessionID int64, text string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return 0, fmt.Errorf("insert note: %w", internal.ErrSessionNotFound)
	}

	n := &internal.Note{ID: s.lastNoteID + 1, SleepSessionID: sessionID, Text: text}
	prev := s.notes[sessionID]
	s.notes[sessionID] = append(prev, n)
	s.lastNoteID = n.ID

	if err := s.persistLocked(); err != nil {
		s.notes[sessionID] = prev
		s.lastNoteID--
		return 0, err
	}
	return n.ID, nil
}

func (s *FileStorage) ListNotes(ctx context.Context, sessionID int64) ([]internal.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	notes := make([]internal.Note, 0, len(s.notes[sessionID]))
	for _, n := range s.notes[sessionID] {
		notes = append(notes, *n)
	}
	return notes, nil
}

// --- Compile-time assertions ---
var _ Store = (*FileStorage)(nil)
