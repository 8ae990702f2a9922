package orchestrator

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"go.trai.ch/zerr"

	"go.trai.ch/knit/internal/core/domain"
)

// writeOutputs writes every bundle under the dist dir and removes files the
// previous build wrote that no bundle produces anymore. Unchanged files are
// left alone. The returned infos carry the written paths.
func (o *Orchestrator) writeOutputs(infos []domain.BundleInfo, contents [][]byte) ([]domain.BundleInfo, error) {
	dist := filepath.ToSlash(o.opts.DistDir)
	written := make([]domain.BundleInfo, len(infos))
	next := make(map[string]string, len(infos))

	var errs error
	for i, info := range infos {
		file := path.Join(dist, info.FilePath)
		info.FilePath = file
		written[i] = info
		next[file] = info.Hash

		if o.outputs[file] == info.Hash && o.opts.OutputFS.IsFile(file) {
			continue
		}
		if err := o.opts.OutputFS.WriteFile(file, contents[i]); err != nil {
			errs = errors.Join(errs, zerr.With(fmt.Errorf("%w: %w", domain.ErrOutputWriteFailed, err), "file", file))
			// Content on disk is unknown; keep tracking the file so the
			// next build rewrites or removes it.
			next[file] = ""
		}
	}

	if errs != nil {
		for file, hash := range next {
			o.outputs[file] = hash
		}
		return written, errs
	}

	for file := range o.outputs {
		if _, ok := next[file]; ok {
			continue
		}
		if err := o.opts.OutputFS.RemoveAll(file); err != nil {
			o.deps.Logger.Warn("failed to remove stale output " + file + ": " + err.Error())
			next[file] = o.outputs[file]
			continue
		}
		o.deps.Logger.Debug("removed stale output " + file)
	}
	o.outputs = next
	return written, nil
}
