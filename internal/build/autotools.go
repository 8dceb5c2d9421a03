package build

import (
	"context"
	"os"
	"path/filepath"

	"github.com/goplus/upsync/internal/fault"
)

// autotools runs "<dir>/configure" followed by "make [target]". Both run in
// the build directory, which defaults to dir itself. Step.Command holds extra
// configure arguments.
func (r *Runner) autotools(ctx context.Context, step Step, dir string) error {
	configure := filepath.Join(dir, "configure")
	if _, err := os.Stat(configure); err != nil {
		return fault.Errorf(fault.Layout, "build", configure, "no configure script")
	}
	buildDir := dir
	if step.BuildDir != "" {
		buildDir = filepath.Join(dir, filepath.FromSlash(step.BuildDir))
		if err := os.MkdirAll(buildDir, 0o755); err != nil {
			return fault.New(fault.Filesystem, "mkdir", buildDir, err)
		}
	}
	if err := r.run(ctx, buildDir, step.Env, configure, step.Command...); err != nil {
		return err
	}
	name := r.MakePath
	if name == "" {
		name = "make"
	}
	var args []string
	if step.Target != "" {
		args = append(args, step.Target)
	}
	return r.run(ctx, buildDir, step.Env, name, args...)
}
