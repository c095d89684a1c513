package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"eventpulse/internal/lifecycle"
	logx "eventpulse/pkg/logx"
)

// fileStore keeps everything next to cfg.Path:
//   - <prefix>.events.json       (snapshot, replaced atomically)
//   - <prefix>.transitions.jsonl (append-only JSON Lines)
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	eventsPath      string
	transitionsPath string
	transitions     *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, ErrPathRequired
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	prefix := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base)))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tp := prefix + ".transitions.jsonl"
	tf, err := os.OpenFile(tp, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{
		log:             log,
		eventsPath:      prefix + ".events.json",
		transitionsPath: tp,
		transitions:     tf,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitions == nil {
		return nil
	}
	err := s.transitions.Close()
	s.transitions = nil
	return err
}

func (s *fileStore) LoadEvents(ctx context.Context) ([]lifecycle.EventRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitions == nil {
		return nil, ErrClosed
	}
	b, err := os.ReadFile(s.eventsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []lifecycle.EventRecord
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fileStore) SaveEvents(ctx context.Context, events []lifecycle.EventRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitions == nil {
		return ErrClosed
	}
	if events == nil {
		events = []lifecycle.EventRecord{}
	}
	tmp := s.eventsPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.eventsPath)
}

func (s *fileStore) AppendTransition(ctx context.Context, t Transition) error {
	_ = ctx
	t = t.prepare()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitions == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.transitions).Encode(t)
}

func (s *fileStore) Transitions(ctx context.Context, eventID string, limit int) ([]Transition, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transitions == nil {
		return nil, ErrClosed
	}
	f, err := os.Open(s.transitionsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []Transition
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var t Transition
		if err := json.Unmarshal(sc.Bytes(), &t); err != nil {
			// A torn last line after a crash is expected.
			s.log.Debug("skipping unreadable transition line", logx.Err(err))
			continue
		}
		if eventID != "" && t.EventID != eventID {
			continue
		}
		out = append(out, t)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return tail(out, limit), nil
}
