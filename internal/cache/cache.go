// Package cache stores results of read-only actions on disk with a TTL.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lydakis/wcfx/internal/paths"
)

type entry struct {
	Account string          `json:"account"`
	Action  string          `json:"action"`
	Result  json.RawMessage `json:"result"`
	Created time.Time       `json:"created"`
	Expires time.Time       `json:"expires"`
}

// Get returns the cached result for action called with params on behalf of
// account, and its age. Expired or corrupt entries are removed and miss.
func Get(account, action string, params json.RawMessage) (json.RawMessage, time.Duration, bool) {
	path := entryPath(account, action, params)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		_ = os.Remove(path)
		return nil, 0, false
	}

	now := time.Now()
	if now.After(e.Expires) {
		_ = os.Remove(path)
		return nil, 0, false
	}

	age := now.Sub(e.Created)
	if age < 0 {
		age = 0
	}
	return e.Result, age, true
}

// Put stores result for ttl.
func Put(account, action string, params json.RawMessage, result json.RawMessage, ttl time.Duration) error {
	if err := paths.EnsureDir(cacheDir()); err != nil {
		return err
	}

	now := time.Now()
	data, err := json.Marshal(entry{
		Account: account,
		Action:  action,
		Result:  result,
		Created: now,
		Expires: now.Add(ttl),
	})
	if err != nil {
		return err
	}
	return os.WriteFile(entryPath(account, action, params), data, 0600)
}

// Purge removes every cached entry and returns how many were removed.
func Purge() (int, error) {
	matches, err := filepath.Glob(filepath.Join(cacheDir(), "*.json"))
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, path := range matches {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func entryPath(account, action string, params json.RawMessage) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", account, action, string(params))
	key := hex.EncodeToString(h.Sum(nil))[:32]
	return filepath.Join(cacheDir(), key+".json")
}

func cacheDir() string {
	return filepath.Join(paths.CacheDir(), "results")
}
