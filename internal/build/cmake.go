package build

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goplus/upsync/internal/fault"
)

const defaultBuildDir = "build"

// cmake configures dir with "cmake -S <dir> -B <build>" and then runs
// "cmake --build <build>". Step.Command holds extra configure arguments.
func (r *Runner) cmake(ctx context.Context, step Step, dir string) error {
	buildDir := step.BuildDir
	if buildDir == "" {
		buildDir = defaultBuildDir
	}
	buildDir = filepath.Join(dir, filepath.FromSlash(buildDir))
	if err := os.MkdirAll(buildDir, 0o755); err != nil {
		return fault.New(fault.Filesystem, "mkdir", buildDir, err)
	}
	name := r.CMakePath
	if name == "" {
		name = "cmake"
	}
	if err := r.run(ctx, dir, step.Env, name, configureArgs(step, dir, buildDir)...); err != nil {
		return err
	}
	return r.run(ctx, dir, step.Env, name, buildArgs(step, buildDir)...)
}

func configureArgs(step Step, dir, buildDir string) []string {
	args := []string{"-S", dir, "-B", buildDir}
	if step.Generator != "" {
		args = append(args, "-G", step.Generator)
	}
	defines := step.Defines
	if step.BuildType != "" {
		defines = make(map[string]string, len(step.Defines)+1)
		for k, v := range step.Defines {
			defines[k] = v
		}
		defines["CMAKE_BUILD_TYPE"] = step.BuildType
	}
	args = append(args, definesArgs(defines)...)
	return append(args, step.Command...)
}

func buildArgs(step Step, buildDir string) []string {
	args := []string{"--build", buildDir}
	if step.BuildType != "" {
		args = append(args, "--config", step.BuildType)
	}
	if step.Target != "" {
		args = append(args, "--target", step.Target)
	}
	return args
}

// definesArgs renders defines as sorted -D<key>:<type>=<value> arguments.
// ON and OFF values are typed BOOL, everything else STRING.
func definesArgs(defines map[string]string) []string {
	if len(defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(defines))
	for k := range defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		v := defines[k]
		typeName := "STRING"
		switch strings.ToUpper(v) {
		case "ON", "OFF":
			typeName = "BOOL"
			v = strings.ToUpper(v)
		}
		args = append(args, "-D"+k+":"+typeName+"="+v)
	}
	return args
}
