package resolver

import (
	"context"
	"strings"

	vcs "github.com/Masterminds/vcs"
	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/pep440"
)

// ResolveDirectURL handles a PEP 508 direct-URL/VCS-sourced requirement
// (the supplemented feature described for §4.J): given a requirement's
// URL field of the form "git+https://host/org/repo@ref" (or "@" absent,
// meaning the repository's default branch), it clones/updates the
// repository into workDir and returns the resolved revision as a
// synthetic local version string and the checkout path as the
// "download URL", mirroring how a regular sdist URL doubles as both
// identity and fetch location elsewhere in this package.
//
// Only git is handled; Masterminds/vcs also exposes svn, bzr, and hg
// repository types behind the same Repo interface for a caller that
// needs them.
func ResolveDirectURL(ctx context.Context, rawURL, workDir string) (checkoutPath string, version pep440.Version, err error) {
	repoURL, ref := splitVCSRef(rawURL)
	repo, err := vcs.NewGitRepo(repoURL, workDir)
	if err != nil {
		return "", pep440.Version{}, errors.Wrapf(err, "creating git repo handle for %s", repoURL)
	}

	if repo.CheckLocal() {
		if err := repo.Update(); err != nil {
			return "", pep440.Version{}, errors.Wrapf(err, "updating %s", repoURL)
		}
	} else {
		if err := repo.Get(); err != nil {
			return "", pep440.Version{}, errors.Wrapf(err, "cloning %s", repoURL)
		}
	}

	if ref != "" {
		if err := repo.UpdateVersion(ref); err != nil {
			return "", pep440.Version{}, errors.Wrapf(err, "checking out %s@%s", repoURL, ref)
		}
	}

	rev, err := repo.Version()
	if err != nil {
		return "", pep440.Version{}, errors.Wrapf(err, "reading resolved revision for %s", repoURL)
	}

	// A VCS revision is not a PEP 440 version; synthesize a local-segment
	// version so the rest of the pipeline (which keys everything off
	// pep440.Version) has something to compare and serialize.
	v, err := pep440.Parse("0+" + sanitizeLocalSegment(rev))
	if err != nil {
		return "", pep440.Version{}, errors.Wrapf(err, "synthesizing version for revision %s", rev)
	}
	return repo.LocalPath(), v, nil
}

func splitVCSRef(rawURL string) (repoURL, ref string) {
	trimmed := strings.TrimPrefix(rawURL, "git+")
	if idx := strings.LastIndexByte(trimmed, '@'); idx >= 0 && !strings.Contains(trimmed[idx:], "/") {
		return trimmed[:idx], trimmed[idx+1:]
	}
	return trimmed, ""
}

func sanitizeLocalSegment(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteRune('.')
		}
	}
	return sb.String()
}
