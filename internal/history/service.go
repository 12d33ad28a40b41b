// Package history keeps a git log of brief snapshots. Each snapshot
// commits brief.json; approvals are additionally tagged.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"syncbrief/api/internal/brief"
)

const contentFile = "brief.json"

var (
	ErrNoHistory        = errors.New("no snapshots recorded")
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

type Commit struct {
	Hash      string    `json:"hash"`
	FullHash  string    `json:"fullHash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
	Tags      []string  `json:"tags"`
}

type Service struct {
	dir string
	mu  sync.Mutex
	now func() time.Time
}

func New(dir string) *Service {
	return &Service{dir: dir, now: time.Now}
}

// Snapshot commits doc as brief.json on main, creating the repository on
// first use. A snapshot is recorded even when the brief did not change.
func (s *Service) Snapshot(doc brief.Document, author, message string) (Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := s.openOrInit()
	if err != nil {
		return Commit{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Commit{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Commit{}, fmt.Errorf("marshal brief: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, contentFile), append(payload, '\n'), 0o644); err != nil {
		return Commit{}, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return Commit{}, fmt.Errorf("git add %s: %w", contentFile, err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@syncbrief.local", sanitizeEmail(author)),
			When:  s.now(),
		},
	})
	if err != nil {
		return Commit{}, fmt.Errorf("commit snapshot: %w", err)
	}
	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Commit{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommit(commitObj, nil), nil
}

// Tag marks the commit with an annotated tag. An existing tag is kept.
func (s *Service) Tag(hash, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return err
	}
	_, err = repo.CreateTag(name, resolved, &git.CreateTagOptions{
		Tagger: &object.Signature{
			Name:  "SyncBrief",
			Email: "syncbrief@localhost",
			When:  s.now(),
		},
		Message: name,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return fmt.Errorf("create tag: %w", err)
	}
	return nil
}

// History lists snapshots newest first. limit <= 0 means all.
func (s *Service) History(limit int) ([]Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []Commit{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	tags, err := tagsByCommit(repo)
	if err != nil {
		return nil, err
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Commit, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommit(commitObj, tags[commitObj.Hash]))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Content returns the brief stored in a snapshot.
func (s *Service) Content(hash string) (brief.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, err := git.PlainOpen(s.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return brief.Document{}, ErrNoHistory
	}
	if err != nil {
		return brief.Document{}, fmt.Errorf("open repo: %w", err)
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return brief.Document{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return brief.Document{}, fmt.Errorf("read commit %s: %w", hash, ErrSnapshotNotFound)
	}
	if err != nil {
		return brief.Document{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(contentFile)
	if err != nil {
		return brief.Document{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return brief.Document{}, fmt.Errorf("read %s: %w", contentFile, err)
	}
	return brief.Decode([]byte(contents))
}

func (s *Service) openOrInit() (*git.Repository, error) {
	repo, err := git.PlainOpen(s.dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	repo, err = git.PlainInit(s.dir, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	// The first commit creates main through HEAD.
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func tagsByCommit(repo *git.Repository) (map[plumbing.Hash][]string, error) {
	iter, err := repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer iter.Close()

	out := map[plumbing.Hash][]string{}
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		if tagObj, err := repo.TagObject(ref.Hash()); err == nil {
			target = tagObj.Target
		}
		out[target] = append(out[target], ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return out, nil
}

func toCommit(commitObj *object.Commit, tags []string) Commit {
	if tags == nil {
		tags = []string{}
	}
	return Commit{
		Hash:      commitObj.Hash.String()[:7],
		FullHash:  commitObj.Hash.String(),
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
		Tags:      tags,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, ErrSnapshotNotFound)
	}
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
