package syncer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/convoy-ops/convoy/internal/oops"
	"github.com/convoy-ops/convoy/internal/types"
)

// materialize resolves a sync's file source into named document contents
// plus a content hash for change detection.
func (e *Engine) materialize(ctx context.Context, sync *types.ResourceSync) (map[string][]byte, string, error) {
	src := sync.Config.Source
	switch src.Type {
	case "UiDefined":
		files := map[string][]byte{"resources.toml": []byte(src.Params.FileContents)}
		return files, contentHash(files), nil
	case "FilesOnHost":
		files, err := readDocTree(src.Params.ResourcePath)
		if err != nil {
			return nil, "", err
		}
		return files, contentHash(files), nil
	case "Git":
		dir := filepath.Join(e.cfg.RepoDir, sync.ID)
		if err := e.cloneOrPull(ctx, dir, src, sync); err != nil {
			return nil, "", err
		}
		files, err := readDocTree(filepath.Join(dir, src.Params.ResourcePath))
		if err != nil {
			return nil, "", err
		}
		return files, contentHash(files), nil
	default:
		return nil, "", oops.New(oops.InvalidConfig, "unknown sync source type %q", src.Type)
	}
}

// cloneOrPull keeps the sync's working clone current. The caller holds the
// per-sync mutex, so concurrent runs never race on the clone directory.
func (e *Engine) cloneOrPull(ctx context.Context, dir string, src types.SyncFileSource, sync *types.ResourceSync) error {
	repo := src.Params.Repo
	if repo == "" {
		return oops.New(oops.InvalidConfig, "git sync source has no repo")
	}
	if src.Params.GitAccount != "" {
		if token, ok := e.cfg.GitToken("github.com", src.Params.GitAccount); ok {
			repo = strings.Replace(repo, "https://", fmt.Sprintf("https://%s:%s@", src.Params.GitAccount, token), 1)
		}
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		args := []string{"-C", dir, "pull", "--ff-only"}
		if out, err := exec.CommandContext(ctx, "git", args...).CombinedOutput(); err != nil {
			return oops.New(oops.Upstream, "git pull for sync %s failed: %s", sync.Name, strings.TrimSpace(string(out)))
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return oops.Wrap(oops.Storage, err, "create sync repo dir")
	}
	args := []string{"clone", "--depth", "1"}
	if src.Params.Branch != "" {
		args = append(args, "--branch", src.Params.Branch)
	}
	args = append(args, repo, dir)
	if out, err := exec.CommandContext(ctx, "git", args...).CombinedOutput(); err != nil {
		return oops.New(oops.Upstream, "git clone for sync %s failed: %s", sync.Name, strings.TrimSpace(string(out)))
	}
	return nil
}

// readDocTree collects sync documents under path: the file itself, or
// every .toml/.yaml/.yml below a directory.
func readDocTree(path string) (map[string][]byte, error) {
	if path == "" {
		return nil, oops.New(oops.InvalidConfig, "sync source has no resource path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, oops.Wrap(oops.Storage, err, "stat sync path")
	}

	files := map[string][]byte{}
	if !info.IsDir() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, oops.Wrap(oops.Storage, err, "read sync file")
		}
		files[filepath.Base(path)] = data
		return files, nil
	}

	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		switch filepath.Ext(p) {
		case ".toml", ".yaml", ".yml":
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			rel, _ := filepath.Rel(path, p)
			files[rel] = data
		}
		return nil
	})
	if err != nil {
		return nil, oops.Wrap(oops.Storage, err, "walk sync path")
	}
	if len(files) == 0 {
		return nil, oops.New(oops.InvalidConfig, "no sync documents under %s", path)
	}
	return files, nil
}

// contentHash hashes the document set deterministically.
func contentHash(files map[string][]byte) string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write(files[name])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
