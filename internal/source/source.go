// Package source loads raw alert messages from a directory of saved alert files.
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/sciencesync/internal/extract"
	"github.com/TobiSchelling/sciencesync/internal/logger"
)

// Result holds the alerts found by a load and what was left out.
type Result struct {
	Alerts   []extract.Alert
	Files    int
	Filtered int
	Failed   int
}

// Loader reads alert files from a directory.
//
// Supported files:
//   - .html, .htm, .txt: the whole file is one alert body
//   - .eml: an RFC 5322 message, subject and date taken from its headers
//   - .xml, .atom, .rss: a feed export, every item is one alert
type Loader struct {
	dir           string
	subjectFilter string
}

// NewLoader creates a loader for dir. Alerts whose subject is known and does not contain
// subjectFilter (case-insensitive) are dropped; an empty filter keeps everything.
func NewLoader(dir, subjectFilter string) *Loader {
	return &Loader{dir: dir, subjectFilter: strings.ToLower(strings.TrimSpace(subjectFilter))}
}

// Load reads every supported file in the directory in name order. Unreadable files are
// logged and counted, not fatal.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	log := logger.FromContext(ctx)

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("reading alert directory: %w", err)
	}

	r := &Result{}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		path := filepath.Join(l.dir, e.Name())
		read := readerFor(e.Name())
		if read == nil {
			continue
		}
		r.Files++

		alerts, err := read(path)
		if err != nil {
			r.Failed++
			log.Warn("failed to read alert file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		for _, a := range alerts {
			if !l.accepts(a.Subject) {
				r.Filtered++
				log.Debug("alert filtered by subject", zap.String("alert", a.ID), zap.String("subject", a.Subject))
				continue
			}
			r.Alerts = append(r.Alerts, a)
		}
	}

	log.Info("alerts loaded",
		zap.String("dir", l.dir),
		zap.Int("files", r.Files),
		zap.Int("alerts", len(r.Alerts)),
		zap.Int("filtered", r.Filtered),
		zap.Int("failed", r.Failed),
	)
	return r, nil
}

func (l *Loader) accepts(subject string) bool {
	if l.subjectFilter == "" || subject == "" {
		return true
	}
	return strings.Contains(strings.ToLower(subject), l.subjectFilter)
}

type readFunc func(path string) ([]extract.Alert, error)

func readerFor(name string) readFunc {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm", ".txt":
		return readPlainFile
	case ".eml":
		return readMessageFile
	case ".xml", ".atom", ".rss":
		return readFeedFile
	default:
		return nil
	}
}

func readPlainFile(path string) ([]extract.Alert, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []extract.Alert{{
		ID:         filepath.Base(path),
		Body:       string(body),
		ReceivedAt: info.ModTime().UTC(),
	}}, nil
}
