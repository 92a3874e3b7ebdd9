package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"jobmatch-engine/internal/normalize"
)

// maxResumeBytes bounds what a resume file may weigh.
const maxResumeBytes = 2 << 20

// ResumeSource resolves a resume reference to its text.
type ResumeSource interface {
	ResumeText(ctx context.Context, ref string) (string, error)
}

var ErrResumeNotFound = errors.New("resume not found")

// FileResumes reads resumes from disk. Relative refs resolve against Dir.
// .html and .htm files are reduced to their visible text.
type FileResumes struct {
	Dir string
}

func (f FileResumes) ResumeText(_ context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrResumeNotFound)
	}
	path := ref
	if !filepath.IsAbs(path) && f.Dir != "" {
		path = filepath.Join(f.Dir, path)
	}

	fh, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrResumeNotFound, path)
	}
	if err != nil {
		return "", err
	}
	defer fh.Close()

	b, err := io.ReadAll(io.LimitReader(fh, maxResumeBytes+1))
	if err != nil {
		return "", err
	}
	if len(b) > maxResumeBytes {
		return "", fmt.Errorf("resume %s is larger than %d bytes", path, maxResumeBytes)
	}

	text := string(b)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		text = normalize.PlainText(text)
	}
	return text, nil
}

// StaticResumes serves resumes from memory, keyed by reference.
type StaticResumes map[string]string

func (s StaticResumes) ResumeText(_ context.Context, ref string) (string, error) {
	text, ok := s[ref]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrResumeNotFound, ref)
	}
	return text, nil
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
