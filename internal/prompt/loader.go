package prompt

import (
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// ErrNotCached is returned by CacheLoader for BPE files it would have to
// download.
var ErrNotCached = errors.New("prompt: tokenizer data not cached")

// CacheLoader is a tiktoken.BpeLoader that reads BPE ranks only from
// local files: the tiktoken cache for remote sources, the path itself for
// local ones. It never opens a network connection.
type CacheLoader struct {
	// Dir overrides the cache directory. Empty uses the directory tiktoken
	// itself downloads into, so files fetched earlier are reused.
	Dir string
}

var _ tiktoken.BpeLoader = CacheLoader{}

// UseOfflineTokenizer makes every later tokenizer lookup in this process
// go through a CacheLoader.
func UseOfflineTokenizer(dir string) {
	tiktoken.SetBpeLoader(CacheLoader{Dir: dir})
}

func (l CacheLoader) LoadTiktokenBpe(file string) (map[string]int, error) {
	path := file
	if strings.HasPrefix(file, "http://") || strings.HasPrefix(file, "https://") {
		path = filepath.Join(l.dir(), fmt.Sprintf("%x", sha1.Sum([]byte(file))))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotCached, file)
		}
		return nil, err
	}
	return parseRanks(data)
}

func (l CacheLoader) dir() string {
	if l.Dir != "" {
		return l.Dir
	}
	for _, env := range []string{"TIKTOKEN_CACHE_DIR", "DATA_GYM_CACHE_DIR"} {
		if d := strings.TrimSpace(os.Getenv(env)); d != "" {
			return d
		}
	}
	return filepath.Join(os.TempDir(), "data-gym-cache")
}

// parseRanks reads "<base64 token> <rank>" lines.
func parseRanks(data []byte) (map[string]int, error) {
	ranks := make(map[string]int)
	for i, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		token, rank, ok := strings.Cut(line, " ")
		if !ok {
			return nil, fmt.Errorf("bpe line %d: missing rank", i+1)
		}
		raw, err := base64.StdEncoding.DecodeString(token)
		if err != nil {
			return nil, fmt.Errorf("bpe line %d: %w", i+1, err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(rank))
		if err != nil {
			return nil, fmt.Errorf("bpe line %d: %w", i+1, err)
		}
		ranks[string(raw)] = n
	}
	return ranks, nil
}
