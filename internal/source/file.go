package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"eventpulse/internal/config"
	"eventpulse/internal/lifecycle"
	logx "eventpulse/pkg/logx"
)

// FileSource reads a JSON or YAML file holding either a list of records or
// an object with an "events" list. Unknown record fields are ignored so
// exports from the backend can be used as-is.
type FileSource struct {
	path string
	log  logx.Logger
}

func NewFile(path string, log logx.Logger) *FileSource {
	return &FileSource{path: path, log: log}
}

func (s *FileSource) Name() string { return "file:" + s.path }

func (s *FileSource) Load(ctx context.Context) ([]lifecycle.EventRecord, error) {
	_ = ctx
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	events, err := decodeEvents(s.path, b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	for _, e := range events {
		for _, w := range e.Warnings() {
			s.log.Warn("event data warning", logx.String("event", e.ID), logx.String("warning", w))
		}
	}
	return events, nil
}

func (s *FileSource) Watch(ctx context.Context, onChange func()) error {
	return config.WatchFile(ctx, s.path, s.log, onChange)
}

func decodeEvents(path string, data []byte) ([]lifecycle.EventRecord, error) {
	jb, err := config.ToJSON(path, data)
	if err != nil {
		return nil, err
	}
	jb = bytes.TrimSpace(jb)
	if len(jb) == 0 || bytes.Equal(jb, []byte("null")) {
		return nil, nil
	}
	if jb[0] == '[' {
		var out []lifecycle.EventRecord
		err := json.Unmarshal(jb, &out)
		return out, err
	}
	var doc struct {
		Events []lifecycle.EventRecord `json:"events"`
	}
	if err := json.Unmarshal(jb, &doc); err != nil {
		return nil, err
	}
	return doc.Events, nil
}
