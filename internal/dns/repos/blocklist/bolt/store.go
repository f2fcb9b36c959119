package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
	bberrors "go.etcd.io/bbolt/errors"

	"github.com/haukened/nfq-dnsfilter/internal/dns/common/utils"
	"github.com/haukened/nfq-dnsfilter/internal/dns/domain"
	"github.com/haukened/nfq-dnsfilter/internal/dns/repos/blocklist"
)

var (
	bucketRules = []byte("rules")
	bucketMeta  = []byte("meta")

	keyVersion = []byte("version")
	keyUpdated = []byte("updated")
)

// rule values: addedAt unix seconds (8) | source length (2) | source bytes
const ruleHeaderLen = 10

// boltStore implements blocklist.Store using bbolt. Rules are keyed by their
// normalized name, so a lookup probes each label-boundary suffix of the query.
type boltStore struct {
	db *bbolt.DB
}

type bucketCreator interface {
	CreateBucketIfNotExists(name []byte) (*bbolt.Bucket, error)
}

type bucketDeleter interface {
	DeleteBucket(name []byte) error
}

// seams for error-path tests
var (
	ensureBucketsFn = ensureBuckets
	deleteBucketsFn = deleteBuckets
	loadRulesFn     = loadRules
	writeMetaFn     = writeMeta
)

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (blocklist.Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blocklist db %q: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error { return ensureBucketsFn(tx) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init blocklist db %q: %w", path, err)
	}
	return &boltStore{db: db}, nil
}

func ensureBuckets(tx bucketCreator) error {
	for _, name := range [][]byte{bucketRules, bucketMeta} {
		if _, err := tx.CreateBucketIfNotExists(name); err != nil {
			return err
		}
	}
	return nil
}

func deleteBuckets(tx bucketDeleter, names ...[]byte) error {
	for _, name := range names {
		if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bberrors.ErrBucketNotFound) {
			return err
		}
	}
	return nil
}

func (s *boltStore) Close() error { return s.db.Close() }

// GetFirstMatch probes name and each of its parent domains, most specific first.
func (s *boltStore) GetFirstMatch(name string) (domain.BlockRule, bool, error) {
	var (
		rule domain.BlockRule
		ok   bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRules)
		if b == nil {
			return nil
		}
		utils.WalkSuffixes(name, func(suffix string) bool {
			v := b.Get([]byte(suffix))
			if v == nil {
				return true
			}
			rule, ok = decodeRuleValue(suffix, v), true
			return false
		})
		return nil
	})
	if err != nil {
		return domain.BlockRule{}, false, err
	}
	return rule, ok, nil
}

// RebuildAll replaces every stored rule and the snapshot metadata in a single
// transaction; readers see either the old or the new set.
func (s *boltStore) RebuildAll(rules []domain.BlockRule, version uint64, updatedUnix int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteBucketsFn(tx, bucketRules, bucketMeta); err != nil {
			return err
		}
		if err := ensureBucketsFn(tx); err != nil {
			return err
		}
		if err := loadRulesFn(tx, rules); err != nil {
			return err
		}
		return writeMetaFn(tx, version, updatedUnix)
	})
}

func loadRules(tx *bbolt.Tx, rules []domain.BlockRule) error {
	b := tx.Bucket(bucketRules)
	for _, r := range rules {
		key := []byte(r.Name)
		if b.Get(key) != nil {
			continue // first rule for a name wins
		}
		if err := b.Put(key, encodeRuleValue(r)); err != nil {
			return fmt.Errorf("store rule %q: %w", r.Name, err)
		}
	}
	return nil
}

func writeMeta(tx *bbolt.Tx, version uint64, updatedUnix int64) error {
	b := tx.Bucket(bucketMeta)
	vbuf := make([]byte, 8)
	ubuf := make([]byte, 8)
	binary.BigEndian.PutUint64(vbuf, version)
	binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
	if err := b.Put(keyVersion, vbuf); err != nil {
		return err
	}
	return b.Put(keyUpdated, ubuf)
}

func encodeRuleValue(r domain.BlockRule) []byte {
	src := r.Source
	if len(src) > 0xFFFF {
		src = src[:0xFFFF]
	}
	v := make([]byte, ruleHeaderLen+len(src))
	binary.BigEndian.PutUint64(v[0:8], uint64(r.AddedAt.Unix()))
	binary.BigEndian.PutUint16(v[8:10], uint16(len(src)))
	copy(v[ruleHeaderLen:], src)
	return v
}

// decodeRuleValue tolerates short or inconsistent values: missing fields are
// left zero, since any stored key is a match regardless of its metadata.
func decodeRuleValue(name string, v []byte) domain.BlockRule {
	r := domain.BlockRule{Name: name}
	if len(v) < ruleHeaderLen {
		return r
	}
	r.AddedAt = time.Unix(int64(binary.BigEndian.Uint64(v[0:8])), 0)
	n := int(binary.BigEndian.Uint16(v[8:10]))
	if n > len(v)-ruleHeaderLen {
		n = 0
	}
	r.Source = string(v[ruleHeaderLen : ruleHeaderLen+n])
	return r
}

func (s *boltStore) Stats() blocklist.StoreStats {
	st := blocklist.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketRules); b != nil {
			st.Rules = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(keyVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(keyUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

var _ blocklist.Store = (*boltStore)(nil)
