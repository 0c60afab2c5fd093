package vcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Submodule policies accepted by Sync.
const (
	SubmoduleNone      = ""
	SubmoduleShallow   = "shallow"
	SubmoduleRecursive = "recursive"
)

const remoteName = "origin"

// VCS defines the interface for version control operations.
type VCS interface {
	// Sync ensures the local repo exists and is at the specified ref.
	// ref can be branch, tag, or commit hash; empty means the remote HEAD.
	// If dir doesn't exist, the repo is initialized there.
	// If dir exists, fetches updates and checks out the ref.
	// Submodules are then updated per the submodule policy.
	// Sync returns the full hash of the checked out commit.
	Sync(ctx context.Context, remote, ref, dir, submodule string) (string, error)

	// Tags returns all tags from the remote repository.
	Tags(ctx context.Context, remote string) ([]string, error)

	// Latest returns the latest commit hash (HEAD) from the remote repository.
	// Returns error if no commits exist.
	Latest(ctx context.Context, remote string) (string, error)
}

// gitVCS implements VCS using go-git.
type gitVCS struct {
	progress io.Writer
	auth     transport.AuthMethod
}

// GitOption configures gitVCS.
type GitOption func(*gitVCS)

// WithProgress streams the remote's progress messages to w.
func WithProgress(w io.Writer) GitOption {
	return func(g *gitVCS) {
		g.progress = w
	}
}

// WithAuth sets the credentials used for every remote operation.
func WithAuth(auth transport.AuthMethod) GitOption {
	return func(g *gitVCS) {
		g.auth = auth
	}
}

// NewGitVCS creates a new git VCS instance.
func NewGitVCS(opts ...GitOption) VCS {
	g := &gitVCS{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *gitVCS) Sync(ctx context.Context, remote, ref, dir, submodule string) (string, error) {
	recurse, err := recursivity(submodule)
	if err != nil {
		return "", err
	}
	if ref == "" {
		if ref, err = g.Latest(ctx, remote); err != nil {
			return "", err
		}
	}
	repo, err := g.ensureInit(dir, remote)
	if err != nil {
		return "", err
	}
	if err := g.fetch(ctx, repo); err != nil {
		return "", err
	}
	hash, err := resolve(repo, ref)
	if err != nil {
		return "", err
	}
	if err := g.checkout(ctx, repo, hash, recurse); err != nil {
		return "", err
	}
	return hash.String(), nil
}

// ensureInit opens the repository at dir, initializing it when missing,
// and points its origin remote at url.
func (g *gitVCS) ensureInit(dir, url string) (*git.Repository, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dir, err)
	}

	if r, err := repo.Remote(remoteName); err == nil {
		urls := r.Config().URLs
		if len(urls) == 1 && urls[0] == url {
			return repo, nil
		}
		if err := repo.DeleteRemote(remoteName); err != nil {
			return nil, err
		}
	}
	_, err = repo.CreateRemote(&config.RemoteConfig{Name: remoteName, URLs: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("set remote: %w", err)
	}
	return repo, nil
}

func (g *gitVCS) fetch(ctx context.Context, repo *git.Repository) error {
	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{"+refs/heads/*:refs/remotes/origin/*"},
		Tags:       git.AllTags,
		Force:      true,
		Auth:       g.auth,
		Progress:   g.progress,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetch: %w", err)
	}
	return nil
}

func (g *gitVCS) checkout(ctx context.Context, repo *git.Repository, hash plumbing.Hash, recurse git.SubmoduleRescursivity) error {
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return fmt.Errorf("checkout %s: %w", hash, err)
	}
	if recurse == git.NoRecurseSubmodules {
		return nil
	}
	subs, err := wt.Submodules()
	if err != nil {
		return fmt.Errorf("list submodules: %w", err)
	}
	err = subs.UpdateContext(ctx, &git.SubmoduleUpdateOptions{
		Init:              true,
		RecurseSubmodules: recurse,
		Auth:              g.auth,
	})
	if err != nil {
		return fmt.Errorf("update submodules: %w", err)
	}
	return nil
}

func (g *gitVCS) Tags(ctx context.Context, remote string) ([]string, error) {
	refs, err := g.list(ctx, remote)
	if err != nil {
		return nil, fmt.Errorf("list remote tags: %w", err)
	}
	var tags []string
	for _, ref := range refs {
		name := ref.Name()
		if !name.IsTag() || strings.HasSuffix(name.String(), "^{}") {
			continue
		}
		tags = append(tags, name.Short())
	}
	return tags, nil
}

func (g *gitVCS) Latest(ctx context.Context, remote string) (string, error) {
	refs, err := g.list(ctx, remote)
	if err != nil {
		return "", fmt.Errorf("get remote HEAD: %w", err)
	}
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, ref := range refs {
		byName[ref.Name()] = ref
	}
	head, ok := byName[plumbing.HEAD]
	if !ok {
		return "", fmt.Errorf("no HEAD found in remote %s", remote)
	}
	// Servers advertise HEAD either as a hash or as a symref to a branch.
	for i := 0; head.Type() == plumbing.SymbolicReference && i < 10; i++ {
		if head, ok = byName[head.Target()]; !ok {
			return "", fmt.Errorf("no HEAD found in remote %s", remote)
		}
	}
	if head.Hash().IsZero() {
		return "", fmt.Errorf("no HEAD found in remote %s", remote)
	}
	return head.Hash().String(), nil
}

func (g *gitVCS) list(ctx context.Context, url string) ([]*plumbing.Reference, error) {
	remote := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: remoteName,
		URLs: []string{url},
	})
	return remote.ListContext(ctx, &git.ListOptions{Auth: g.auth})
}

// resolve maps ref to a commit: a full hash, then a tag, then a branch of
// origin, then anything go-git can resolve such as an abbreviated hash.
func resolve(repo *git.Repository, ref string) (plumbing.Hash, error) {
	if plumbing.IsHash(ref) {
		h := plumbing.NewHash(ref)
		if _, err := repo.CommitObject(h); err == nil {
			return h, nil
		}
	}
	for _, rev := range []string{
		plumbing.NewTagReferenceName(ref).String(),
		plumbing.NewRemoteReferenceName(remoteName, ref).String(),
		ref,
	} {
		if h, err := repo.ResolveRevision(plumbing.Revision(rev)); err == nil {
			return *h, nil
		}
	}
	return plumbing.ZeroHash, fmt.Errorf("unknown revision %q", ref)
}

func recursivity(policy string) (git.SubmoduleRescursivity, error) {
	switch policy {
	case SubmoduleNone:
		return git.NoRecurseSubmodules, nil
	case SubmoduleShallow:
		return 1, nil
	case SubmoduleRecursive:
		return git.DefaultSubmoduleRecursionDepth, nil
	}
	return git.NoRecurseSubmodules, fmt.Errorf("unknown submodule policy %q", policy)
}
