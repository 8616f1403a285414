package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// EnvFile is the optional dotenv file read from the workspace.
const EnvFile = ".env"

// loadEnv merges the workspace .env file over the host environment. The
// result is the environment of every launched process and of the `env`
// variable in the project file.
func loadEnv(workspace string, host []string) (map[string]string, error) {
	env := make(map[string]string, len(host))
	for _, kv := range host {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	file, err := godotenv.Read(filepath.Join(workspace, EnvFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", EnvFile, err)
	default:
		for k, v := range file {
			env[k] = v
		}
	}
	return env, nil
}

// environ renders env as sorted NAME=VALUE pairs.
func environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
