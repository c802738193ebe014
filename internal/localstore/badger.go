package localstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/gondolapp/gondolapp/internal/catalog"
	"github.com/gondolapp/gondolapp/internal/expiration"
	"github.com/gondolapp/gondolapp/internal/restock"
)

// Key layout. The barcode index keys end with the big-endian insertion
// sequence so a prefix scan yields the earliest variant first.
var (
	prefixBase       = []byte("base/")
	prefixVariant    = []byte("variant/")
	prefixBarcode    = []byte("barcode/")
	prefixRestock    = []byte("restock/")
	prefixExpiration = []byte("expiration/")
	keySequence      = []byte("meta/variant_seq")
)

// Badger is an embedded engine for nodes that run without PostgreSQL. Writes
// are serialised by a mutex so read-modify-write paths never hit
// transaction conflicts.
type Badger struct {
	db *badger.DB
	mu sync.Mutex
}

type badgerVariant struct {
	Seq     uint64                 `json:"seq"`
	Variant catalog.ProductVariant `json:"variant"`
}

// OpenBadger opens (or creates) a database under dir. An empty dir keeps
// everything in memory.
func OpenBadger(dir string, logger *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger: logger})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("localstore: open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// Close flushes and closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) GetBase(_ context.Context, id string) (catalog.ProductBase, error) {
	var base catalog.ProductBase
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, key(prefixBase, id), &base)
	})
	return base, notFound(err, catalog.ErrNotFound)
}

func (b *Badger) PutBase(_ context.Context, base catalog.ProductBase) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, key(prefixBase, base.ID), base)
	})
}

func (b *Badger) DeleteBase(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.db.Update(func(txn *badger.Txn) error {
		return deleteExisting(txn, key(prefixBase, id))
	})
	return notFound(err, catalog.ErrNotFound)
}

func (b *Badger) GetVariant(_ context.Context, id string) (catalog.ProductVariant, error) {
	var stored badgerVariant
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, key(prefixVariant, id), &stored)
	})
	return stored.Variant, notFound(err, catalog.ErrNotFound)
}

// PutVariant inserts or replaces a variant, keeping the original insertion
// position on replace.
func (b *Badger) PutVariant(_ context.Context, variant catalog.ProductVariant) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Update(func(txn *badger.Txn) error {
		var existing badgerVariant
		err := getJSON(txn, key(prefixVariant, variant.ID), &existing)
		switch {
		case err == nil:
			if err := txn.Delete(barcodeKey(existing.Variant.Barcode, existing.Seq)); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			seq, err := nextSequence(txn)
			if err != nil {
				return err
			}
			existing.Seq = seq
		default:
			return err
		}
		stored := badgerVariant{Seq: existing.Seq, Variant: variant}
		if err := setJSON(txn, key(prefixVariant, variant.ID), stored); err != nil {
			return err
		}
		return txn.Set(barcodeKey(variant.Barcode, stored.Seq), []byte(variant.ID))
	})
}

func (b *Badger) DeleteVariant(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.db.Update(func(txn *badger.Txn) error {
		var stored badgerVariant
		if err := getJSON(txn, key(prefixVariant, id), &stored); err != nil {
			return err
		}
		if err := txn.Delete(barcodeKey(stored.Variant.Barcode, stored.Seq)); err != nil {
			return err
		}
		return txn.Delete(key(prefixVariant, id))
	})
	return notFound(err, catalog.ErrNotFound)
}

func (b *Badger) FindVariantByBarcode(_ context.Context, barcode string) (catalog.ProductVariant, error) {
	var stored badgerVariant
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := barcodePrefix(barcode)
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 1})
		defer it.Close()
		if it.Seek(prefix); !it.ValidForPrefix(prefix) {
			return badger.ErrKeyNotFound
		}
		id, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, key(prefixVariant, string(id)), &stored)
	})
	return stored.Variant, notFound(err, catalog.ErrNotFound)
}

func (b *Badger) ListVariantsByBase(_ context.Context, baseID string) ([]catalog.ProductVariant, error) {
	return b.variants(func(v catalog.ProductVariant) bool { return v.BaseID == baseID })
}

func (b *Badger) ListVariants(_ context.Context) ([]catalog.ProductVariant, error) {
	return b.variants(nil)
}

func (b *Badger) variants(keep func(catalog.ProductVariant) bool) ([]catalog.ProductVariant, error) {
	stored, err := scanJSON[badgerVariant](b.db, prefixVariant)
	if err != nil {
		return nil, err
	}
	sort.Slice(stored, func(i, j int) bool { return stored[i].Seq < stored[j].Seq })
	out := make([]catalog.ProductVariant, 0, len(stored))
	for _, s := range stored {
		if keep == nil || keep(s.Variant) {
			out = append(out, s.Variant)
		}
	}
	return out, nil
}

// SearchBases matches term case-insensitively against name, brand and
// category, ordered by name.
func (b *Badger) SearchBases(ctx context.Context, term string, limit int) ([]catalog.ProductBase, error) {
	bases, err := b.ListBases(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(term))
	out := make([]catalog.ProductBase, 0, len(bases))
	for _, base := range bases {
		if needle == "" ||
			strings.Contains(strings.ToLower(base.Name), needle) ||
			strings.Contains(strings.ToLower(base.Brand), needle) ||
			strings.Contains(strings.ToLower(base.Category), needle) {
			out = append(out, base)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *Badger) ListBases(_ context.Context) ([]catalog.ProductBase, error) {
	bases, err := scanJSON[catalog.ProductBase](b.db, prefixBase)
	if err != nil {
		return nil, err
	}
	sortBases(bases)
	return bases, nil
}

func (b *Badger) ListRestock(_ context.Context) ([]restock.Item, error) {
	return scanJSON[restock.Item](b.db, prefixRestock)
}

func (b *Badger) GetRestock(_ context.Context, id string) (restock.Item, error) {
	var item restock.Item
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, key(prefixRestock, id), &item)
	})
	return item, notFound(err, restock.ErrNotFound)
}

func (b *Badger) InsertRestock(_ context.Context, item restock.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Update(func(txn *badger.Txn) error {
		if !item.Restocked {
			if _, err := findOpenRestock(txn, item.VariantID, ""); err == nil {
				return restock.ErrDuplicate
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return setJSON(txn, key(prefixRestock, item.ID), item)
	})
}

func (b *Badger) FindOpenRestock(_ context.Context, variantID string) (restock.Item, error) {
	var item restock.Item
	err := b.db.View(func(txn *badger.Txn) error {
		found, err := findOpenRestock(txn, variantID, "")
		item = found
		return err
	})
	return item, notFound(err, restock.ErrNotFound)
}

func (b *Badger) UpdateRestock(_ context.Context, item restock.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(prefixRestock, item.ID)); err != nil {
			return err
		}
		if !item.Restocked {
			if _, err := findOpenRestock(txn, item.VariantID, item.ID); err == nil {
				return restock.ErrDuplicate
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return setJSON(txn, key(prefixRestock, item.ID), item)
	})
	return notFound(err, restock.ErrNotFound)
}

func findOpenRestock(txn *badger.Txn, variantID, exceptID string) (restock.Item, error) {
	var found restock.Item
	err := iterateJSON(txn, prefixRestock, func(item restock.Item) bool {
		if item.ID != exceptID && item.VariantID == variantID && !item.Restocked {
			found = item
			return false
		}
		return true
	})
	if err != nil {
		return restock.Item{}, err
	}
	if found.ID == "" {
		return restock.Item{}, badger.ErrKeyNotFound
	}
	return found, nil
}

func (b *Badger) DeleteRestock(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.db.Update(func(txn *badger.Txn) error {
		return deleteExisting(txn, key(prefixRestock, id))
	})
	return notFound(err, restock.ErrNotFound)
}

func (b *Badger) DeleteRestocked(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	err := b.db.Update(func(txn *badger.Txn) error {
		var ids []string
		if err := iterateJSON(txn, prefixRestock, func(item restock.Item) bool {
			if item.Restocked {
				ids = append(ids, item.ID)
			}
			return true
		}); err != nil {
			return err
		}
		for _, id := range ids {
			if err := txn.Delete(key(prefixRestock, id)); err != nil {
				return err
			}
		}
		n = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (b *Badger) ListExpirations(_ context.Context) ([]expiration.Item, error) {
	return scanJSON[expiration.Item](b.db, prefixExpiration)
}

func (b *Badger) GetExpiration(_ context.Context, id string) (expiration.Item, error) {
	var item expiration.Item
	err := b.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, key(prefixExpiration, id), &item)
	})
	return item, notFound(err, expiration.ErrNotFound)
}

func (b *Badger) PutExpiration(_ context.Context, item expiration.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, key(prefixExpiration, item.ID), item)
	})
}

func (b *Badger) DeleteExpiration(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	err := b.db.Update(func(txn *badger.Txn) error {
		return deleteExisting(txn, key(prefixExpiration, id))
	})
	return notFound(err, expiration.ErrNotFound)
}

func key(prefix []byte, id string) []byte {
	out := make([]byte, 0, len(prefix)+len(id))
	out = append(out, prefix...)
	return append(out, id...)
}

func barcodePrefix(barcode string) []byte {
	out := key(prefixBarcode, barcode)
	return append(out, 0)
}

func barcodeKey(barcode string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(barcodePrefix(barcode), seq)
}

func nextSequence(txn *badger.Txn) (uint64, error) {
	var seq uint64
	item, err := txn.Get(keySequence)
	switch {
	case err == nil:
		if err := item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("localstore: corrupt sequence of %d bytes", len(val))
			}
			seq = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return 0, err
		}
	case !errors.Is(err, badger.ErrKeyNotFound):
		return 0, err
	}
	seq++
	if err := txn.Set(keySequence, binary.BigEndian.AppendUint64(nil, seq)); err != nil {
		return 0, err
	}
	return seq, nil
}

func getJSON(txn *badger.Txn, k []byte, target any) error {
	item, err := txn.Get(k)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, target)
	})
}

func setJSON(txn *badger.Txn, k []byte, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return txn.Set(k, payload)
}

func deleteExisting(txn *badger.Txn, k []byte) error {
	if _, err := txn.Get(k); err != nil {
		return err
	}
	return txn.Delete(k)
}

// iterateJSON decodes every value under prefix until fn returns false.
func iterateJSON[T any](txn *badger.Txn, prefix []byte, fn func(T) bool) error {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 100})
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var value T
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &value)
		}); err != nil {
			return err
		}
		if !fn(value) {
			return nil
		}
	}
	return nil
}

func scanJSON[T any](db *badger.DB, prefix []byte) ([]T, error) {
	out := make([]T, 0)
	err := db.View(func(txn *badger.Txn) error {
		return iterateJSON(txn, prefix, func(value T) bool {
			out = append(out, value)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func notFound(err, sentinel error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return sentinel
	}
	return err
}

// badgerLogger routes badger's printf-style logging into slog. Info and
// debug chatter is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) log() *slog.Logger {
	if l.logger == nil {
		return slog.Default()
	}
	return l.logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.log().Error(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.log().Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.log().Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.log().Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}
