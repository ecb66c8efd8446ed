package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/TobiSchelling/sciencesync/internal/extract"
)

func readFeedFile(path string) ([]extract.Alert, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	feed, err := gofeed.NewParser().Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}

	var fallback time.Time
	if info, err := f.Stat(); err == nil {
		fallback = info.ModTime().UTC()
	}

	name := filepath.Base(path)
	alerts := make([]extract.Alert, 0, len(feed.Items))
	for i, item := range feed.Items {
		a := parseItem(item, fallback)
		if a.Body == "" {
			continue
		}
		if a.ID == "" {
			a.ID = name + "#" + strconv.Itoa(i)
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func parseItem(item *gofeed.Item, fallback time.Time) extract.Alert {
	a := extract.Alert{
		ID:         strings.TrimSpace(item.GUID),
		Subject:    strings.TrimSpace(item.Title),
		ReceivedAt: fallback,
	}

	if item.Content != "" {
		a.Body = item.Content
	} else {
		a.Body = item.Description
	}

	if item.PublishedParsed != nil {
		a.ReceivedAt = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		a.ReceivedAt = item.UpdatedParsed.UTC()
	}
	return a
}
