package automation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chromedp/cdproto/browser"

	"songfactory/internal/fileutil"
)

// fileDownload is a finished browser download sitting in the private
// download directory under its GUID.
type fileDownload struct {
	path      string
	suggested string
}

func (d *fileDownload) SuggestedFilename() string {
	return d.suggested
}

// SaveTo moves the download to path.
func (d *fileDownload) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create download target dir: %w", err)
	}
	if err := os.Rename(d.path, path); err == nil {
		return nil
	}
	if _, err := fileutil.CopyFileAtomic(d.path, path); err != nil {
		return err
	}
	return os.Remove(d.path)
}

var errDownloadCanceled = errors.New("browser download canceled")

// downloadState follows the single download a menu click starts.
type downloadState struct {
	mu        sync.Mutex
	armed     bool
	guid      string
	suggested string
	done      chan error
}

func (s *downloadState) arm() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = true
	s.guid = ""
	s.suggested = ""
	s.done = make(chan error, 1)
	return s.done
}

func (s *downloadState) disarm() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armed = false
	return s.guid, s.suggested
}

func (s *downloadState) begin(ev *browser.EventDownloadWillBegin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed || s.guid != "" {
		return
	}
	s.guid = ev.GUID
	s.suggested = ev.SuggestedFilename
}

func (s *downloadState) progress(ev *browser.EventDownloadProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed || ev.GUID != s.guid {
		return
	}
	switch ev.State {
	case browser.DownloadProgressStateCompleted:
		s.finish(nil)
	case browser.DownloadProgressStateCanceled:
		s.finish(errDownloadCanceled)
	}
}

func (s *downloadState) finish(err error) {
	select {
	case s.done <- err:
	default:
	}
}
