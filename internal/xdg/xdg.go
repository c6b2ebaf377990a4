// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package xdg provides functions for locating per-application
// configuration, state and runtime files.
package xdg

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
)

// Config returns the path to the named file in the app's configuration
// directory, searching ConfigHome and then ConfigDirs unless local is
// true. If no file is found Config returns ENOENT.
func Config(app, name string, local bool) (string, error) {
	return find(filepath.Join(app, name),
		key_XDG_CONFIG_HOME, def_XDG_CONFIG_HOME,
		key_XDG_CONFIG_DIRS, def_XDG_CONFIG_DIRS,
		_HOME, local)
}

// ConfigHome returns the path corresponding to XDG_CONFIG_HOME.
func ConfigHome() (string, bool) {
	return envOrDefault(key_XDG_CONFIG_HOME, def_XDG_CONFIG_HOME, _HOME)
}

// StatePath returns the path for the named file in the app's state
// directory under StateHome, creating the directory if it does not exist.
// The file itself need not exist.
func StatePath(app, name string) (string, error) {
	return path(app, name, key_XDG_STATE_HOME, def_XDG_STATE_HOME, 0o755)
}

// StateHome returns the path corresponding to XDG_STATE_HOME.
func StateHome() (string, bool) {
	return envOrDefault(key_XDG_STATE_HOME, def_XDG_STATE_HOME, _HOME)
}

// RuntimePath returns the path for the named file in the app's runtime
// directory under RuntimeDir, creating the directory with owner only
// permissions if it does not exist. The file itself need not exist.
func RuntimePath(app, name string) (string, error) {
	return path(app, name, key_XDG_RUNTIME_DIR, def_XDG_RUNTIME_DIR, 0o700)
}

// RuntimeDir returns the path corresponding to XDG_RUNTIME_DIR.
func RuntimeDir() (string, bool) {
	return envOrDefault(key_XDG_RUNTIME_DIR, def_XDG_RUNTIME_DIR, _HOME)
}

// path returns the path to name in the app directory under the keyed base
// directory, creating the app directory with perm if necessary.
func path(app, name, key, def string, perm os.FileMode) (string, error) {
	base, ok := envOrDefault(key, def, _HOME)
	if !ok {
		return "", syscall.ENOENT
	}
	dir := filepath.Join(base, app)
	err := os.MkdirAll(dir, perm)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !fi.IsDir() {
		return "", errors.New("not a directory: " + dir)
	}
	return filepath.Join(dir, name), nil
}

// find returns the path to the named file found first in the list of paths
// in the keyed environment variable, or default, prepending home where
// necessary. If local is false, paths outside the user's home are included.
func find(name, keyLocal, defLocal, keyGlobal, defGlobal, home string, local bool) (string, error) {
	base, ok := envOrDefault(keyLocal, defLocal, home)
	if ok {
		path := filepath.Join(base, name)
		_, err := os.Stat(path)
		if err == nil {
			return path, nil
		}
	}
	if local {
		return "", syscall.ENOENT
	}
	list, ok := envOrDefault(keyGlobal, defGlobal, "")
	if !ok {
		return "", syscall.ENOENT
	}
	for _, base := range filepath.SplitList(list) {
		path := filepath.Join(base, name)
		_, err := os.Stat(path)
		if err == nil {
			return path, nil
		}
	}
	return "", syscall.ENOENT
}

// envOrDefault return the path or path list corresponding to the provided
// key and default. If home is not empty, the default is treated as an absolute
// path or path list and returned unaltered, otherwise the default is returned
// relative to home.
func envOrDefault(key, def, home string) (string, bool) {
	if key != "" {
		val, ok := os.LookupEnv(key)
		if ok {
			return val, true
		}
	}
	if def == "" {
		return "", false
	}
	if home == "" || filepath.IsAbs(def) {
		return def, true
	}
	base, ok := os.LookupEnv(home)
	if !ok {
		return "", false
	}
	return filepath.Join(base, def), true
}
