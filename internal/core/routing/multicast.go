package routing

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	multicastPartitionSeparator = "/"
	singleLevelWildcard         = "+"
	multiLevelWildcard          = "*"
)

// DefaultPatternCacheSize bounds the compiled multicast patterns kept around.
const DefaultPatternCacheSize = 1024

// WildcardRegexFactory turns multicast ids with wildcards into regular
// expression patterns. "+" matches exactly one partition, a trailing "*"
// matches any number of remaining partitions, including none.
type WildcardRegexFactory struct {
	compiled *lru.Cache[string, *regexp.Regexp]
}

func NewWildcardRegexFactory(cacheSize int) (*WildcardRegexFactory, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultPatternCacheSize
	}
	cache, err := lru.New[string, *regexp.Regexp](cacheSize)
	if err != nil {
		return nil, err
	}
	return &WildcardRegexFactory{compiled: cache}, nil
}

// CreateIDPattern returns the anchored pattern for multicastID.
func (f *WildcardRegexFactory) CreateIDPattern(multicastID string) (string, error) {
	partitions := strings.Split(multicastID, multicastPartitionSeparator)

	var b strings.Builder
	b.WriteString("^")
	for i, partition := range partitions {
		last := i == len(partitions)-1
		switch {
		case partition == multiLevelWildcard && last:
			if i == 0 {
				b.WriteString(".*")
			} else {
				b.WriteString("(" + regexp.QuoteMeta(multicastPartitionSeparator) + ".*)?")
			}
			b.WriteString("$")
			return b.String(), nil
		case strings.Contains(partition, multiLevelWildcard):
			return "", fmt.Errorf("%w: %q", ErrInvalidMulticastID, multicastID)
		case partition == singleLevelWildcard:
			if i > 0 {
				b.WriteString(regexp.QuoteMeta(multicastPartitionSeparator))
			}
			b.WriteString("[^/]+")
		case strings.Contains(partition, singleLevelWildcard):
			return "", fmt.Errorf("%w: %q", ErrInvalidMulticastID, multicastID)
		default:
			if i > 0 {
				b.WriteString(regexp.QuoteMeta(multicastPartitionSeparator))
			}
			b.WriteString(regexp.QuoteMeta(partition))
		}
	}
	b.WriteString("$")
	return b.String(), nil
}

// Matches reports whether multicastID matches pattern. Compiled patterns are cached.
func (f *WildcardRegexFactory) Matches(pattern, multicastID string) bool {
	re, ok := f.compiled.Get(pattern)
	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return false
		}
		f.compiled.Add(pattern, re)
	}
	return re.MatchString(multicastID)
}

// receiverRegistry maps multicast id patterns to subscriber participant ids.
// A subscriber registered twice is listed twice, so the list length is the
// reference count that drives skeleton (un)registration.
type receiverRegistry struct {
	mu        sync.RWMutex
	receivers map[string][]string
}

func newReceiverRegistry() *receiverRegistry {
	return &receiverRegistry{receivers: make(map[string][]string)}
}

// add appends subscriberID and reports whether pattern had no receivers before.
func (r *receiverRegistry) add(pattern, subscriberID string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.receivers[pattern]
	r.receivers[pattern] = append(existing, subscriberID)
	return !ok
}

// remove drops one registration of subscriberID and reports whether pattern
// has no receivers left.
func (r *receiverRegistry) remove(pattern, subscriberID string) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	receivers, ok := r.receivers[pattern]
	if !ok {
		return false
	}
	for i, id := range receivers {
		if id == subscriberID {
			receivers = append(receivers[:i], receivers[i+1:]...)
			break
		}
	}
	if len(receivers) == 0 {
		delete(r.receivers, pattern)
		return true
	}
	r.receivers[pattern] = receivers
	return false
}

// snapshot copies the registry so callers can match without holding the lock.
func (r *receiverRegistry) snapshot() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.receivers))
	for pattern, receivers := range r.receivers {
		out[pattern] = append([]string(nil), receivers...)
	}
	return out
}

func (r *receiverRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.receivers)
}
