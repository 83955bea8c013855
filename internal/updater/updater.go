package updater

import (
	"context"
	"fmt"
	"strings"

	"github.com/creativeprojects/go-selfupdate"
	log "github.com/sirupsen/logrus"

	"github.com/dyget/dyget/internal/core/version"
)

const (
	repoOwner = "dyget"
	repoName  = "dyget"
)

func newUpdater() (*selfupdate.Updater, error) {
	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, err
	}
	return selfupdate.NewUpdater(selfupdate.Config{
		Source:    source,
		Validator: &selfupdate.ChecksumValidator{UniqueFilename: "checksums.txt"},
	})
}

// currentVersion returns the running version without a leading "v".
func currentVersion() string {
	return strings.TrimPrefix(version.Version, "v")
}

func latest(ctx context.Context, up *selfupdate.Updater) (*selfupdate.Release, error) {
	release, found, err := up.DetectLatest(ctx, selfupdate.NewRepositorySlug(repoOwner, repoName))
	if err != nil {
		return nil, fmt.Errorf("failed to check for updates: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("no releases found for %s/%s", repoOwner, repoName)
	}
	return release, nil
}

// CheckUpdate reports the latest release and whether it is newer than the running binary
func CheckUpdate(ctx context.Context) (*selfupdate.Release, bool, error) {
	up, err := newUpdater()
	if err != nil {
		return nil, false, err
	}
	release, err := latest(ctx, up)
	if err != nil {
		return nil, false, err
	}
	return release, !release.LessOrEqual(currentVersion()), nil
}

// Update replaces the running executable with the latest release.
// It returns the installed version, or "" when already up to date.
func Update(ctx context.Context) (string, error) {
	up, err := newUpdater()
	if err != nil {
		return "", err
	}
	release, err := latest(ctx, up)
	if err != nil {
		return "", err
	}
	if release.LessOrEqual(currentVersion()) {
		return "", nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	log.WithFields(log.Fields{
		"from": currentVersion(),
		"to":   release.Version(),
	}).Info("updating")

	if err := up.UpdateTo(ctx, release, exe); err != nil {
		return "", fmt.Errorf("failed to update: %w", err)
	}
	return release.Version(), nil
}
