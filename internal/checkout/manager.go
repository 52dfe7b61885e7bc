package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"

	"github.com/mcgarrah/speech-enhancement/internal/model"
)

// Head describes the commit a checkout currently points to.
type Head struct {
	// Commit is the full SHA of HEAD.
	Commit string

	// Branch is the short branch name, or empty when HEAD is detached.
	Branch string
}

// ShortCommit returns the first 8 characters of the commit SHA.
func (h Head) ShortCommit() string {
	if len(h.Commit) > 8 {
		return h.Commit[:8]
	}
	return h.Commit
}

// PullResult reports what a pull did.
type PullResult struct {
	// Updated is false when the checkout was already up to date.
	Updated bool

	// Head is the checkout's HEAD after the pull.
	Head Head
}

// Manager provides checkout operations using go-git.
type Manager struct {
	// Remote is the remote pulled from. Defaults to "origin".
	Remote string
}

// NewManager creates a Manager that pulls from the given remote.
func NewManager(remote string) *Manager {
	if remote == "" {
		remote = git.DefaultRemoteName
	}
	return &Manager{Remote: remote}
}

// IsRepository reports whether dir is the root of a git checkout (or a
// subdirectory of one).
func (m *Manager) IsRepository(dir string) bool {
	_, err := open(dir)
	return err == nil
}

// Head returns the current HEAD of the checkout at dir.
func (m *Manager) Head(dir string) (Head, error) {
	repo, err := open(dir)
	if err != nil {
		return Head{}, err
	}
	return readHead(repo, dir)
}

// Pull fetches the current branch's upstream and fast-forwards the branch
// to it, like `git pull <remote>`. An already up-to-date checkout is not an
// error. A detached HEAD, a branch without tracking information or a branch
// tracking another remote fails, as it does with git.
func (m *Manager) Pull(ctx context.Context, dir string) (*PullResult, error) {
	repo, err := open(dir)
	if err != nil {
		return nil, err
	}

	upstream, err := m.upstream(repo, dir)
	if err != nil {
		return nil, err
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGitError,
			fmt.Sprintf("failed to open worktree of %s", dir), err)
	}

	result := &PullResult{Updated: true}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    upstream.Remote,
		ReferenceName: upstream.Merge,
	})
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		result.Updated = false
	case err != nil:
		return nil, model.WrapCLIError(model.ExitGitError,
			fmt.Sprintf("git pull %s failed in %s", m.Remote, dir), err)
	}

	head, err := readHead(repo, dir)
	if err != nil {
		return nil, err
	}
	result.Head = head
	return result, nil
}

// upstream returns the tracking configuration of the checked-out branch.
func (m *Manager) upstream(repo *git.Repository, dir string) (*gitconfig.Branch, error) {
	head, err := readHead(repo, dir)
	if err != nil {
		return nil, err
	}
	if head.Branch == "" {
		return nil, model.NewCLIError(model.ExitGitError,
			fmt.Sprintf("git pull %s failed in %s: HEAD is detached", m.Remote, dir))
	}

	branch, err := repo.Branch(head.Branch)
	if err != nil || branch.Remote == "" || branch.Merge == "" {
		return nil, model.WrapCLIError(model.ExitGitError,
			fmt.Sprintf("git pull %s failed in %s: branch %s has no tracking information", m.Remote, dir, head.Branch), err)
	}
	if branch.Remote != m.Remote {
		return nil, model.NewCLIError(model.ExitGitError,
			fmt.Sprintf("git pull %s failed in %s: branch %s tracks %s", m.Remote, dir, head.Branch, branch.Remote))
	}
	return branch, nil
}

// open opens the repository containing dir. DetectDotGit lets the launcher
// run from a subdirectory of the checkout.
func open(dir string) (*git.Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGitError,
			fmt.Sprintf("%s is not a git checkout", dir), err)
	}
	return repo, nil
}

func readHead(repo *git.Repository, dir string) (Head, error) {
	ref, err := repo.Head()
	if err != nil {
		return Head{}, model.WrapCLIError(model.ExitGitError,
			fmt.Sprintf("failed to resolve HEAD in %s", dir), err)
	}
	h := Head{Commit: ref.Hash().String()}
	if ref.Name().IsBranch() {
		h.Branch = ref.Name().Short()
	}
	return h, nil
}
